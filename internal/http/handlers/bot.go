package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/botsdv/backend/internal/service"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

type BotCommentRequest struct {
	TicketNumber     string `json:"ticket_number" validate:"required"`
	UserTelegramID   string `json:"user_telegram_id"`
	UserTelegramName string `json:"user_telegram_name"`
	CommentRequest
}

// @Summary Bot ticket intake
// @Tags bot
// @Accept json
// @Produce json
// @Param X-Bot-Key header string true "Bot key"
// @Param body body CreateTicketRequest true "Ticket"
// @Success 201 {object} models.Ticket
// @Router /api/webhook/telegram [post]
func (h *Handler) TelegramWebhook(c *gin.Context) {
	var req CreateTicketRequest
	if !h.bind(c, &req) {
		return
	}
	t, err := h.Tickets.Create(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info().Str("ticket_number", t.TicketNumber).Str("chat_id", t.ReporterChatID).Msg("ticket received from bot")
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) BotComment(c *gin.Context) {
	var req BotCommentRequest
	if !h.bind(c, &req) {
		return
	}
	comment, err := h.Engine.AddBotComment(c.Request.Context(), req.TicketNumber, service.BotCommentInput{
		ReporterID:   req.UserTelegramID,
		ReporterName: req.UserTelegramName,
		CommentInput: req.input(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// @Summary Undelivered staff comments
// @Description Staff comments the bot still has to relay to reporters, oldest first.
// @Tags bot
// @Produce json
// @Param X-Bot-Key header string true "Bot key"
// @Param limit query int false "Max items (default 50)"
// @Success 200 {object} map[string]any
// @Router /api/comments/pending-telegram [get]
func (h *Handler) PendingTelegram(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPendingLimit)))
	if err != nil || limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	items, err := h.Tickets.PendingDeliveries(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) MarkCommentSent(c *gin.Context) {
	if err := h.Tickets.MarkDelivered(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
