package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/service"
)

type CreateTicketRequest struct {
	TicketNumber     string            `json:"ticket_number" validate:"omitempty,max=32"`
	UserTelegramID   string            `json:"user_telegram_id" validate:"max=64"`
	UserTelegramName string            `json:"user_telegram_name" validate:"max=128"`
	Category         string            `json:"category" validate:"required,max=128"`
	Subtype          string            `json:"subtype" validate:"max=64"`
	TransactionType  string            `json:"transaction_type" validate:"max=64"`
	Description      string            `json:"description" validate:"required"`
	Details          map[string]string `json:"details"`
}

func (r CreateTicketRequest) input() service.CreateTicketInput {
	return service.CreateTicketInput{
		TicketNumber:    r.TicketNumber,
		ReporterChatID:  r.UserTelegramID,
		ReporterName:    r.UserTelegramName,
		Category:        r.Category,
		Subtype:         r.Subtype,
		TransactionType: r.TransactionType,
		Description:     r.Description,
		Details:         r.Details,
	}
}

// optionalString tells an absent field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type UpdateTicketRequest struct {
	Status            *models.TicketStatus `json:"status"`
	AssignedAgent     optionalString       `json:"assigned_agent" swaggertype:"string"`
	AssignedAgentName *string              `json:"assigned_agent_name"`
}

type ClaimRequest struct {
	Status models.TicketStatus `json:"status" validate:"omitempty,oneof=in_progress pending"`
}

// @Summary Create ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param body body CreateTicketRequest true "Ticket"
// @Success 201 {object} models.Ticket
// @Failure 400 {object} map[string]any
// @Router /api/tickets [post]
func (h *Handler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if !h.bind(c, &req) {
		return
	}
	t, err := h.Tickets.Create(c.Request.Context(), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary List tickets
// @Description Agents without a status filter see their own tickets; status=open lists the unassigned pool.
// @Tags tickets
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param status query string false "open, pending, in_progress or completed"
// @Param today_only query bool false "Only tickets created today"
// @Param start_date query string false "YYYY-MM-DD"
// @Success 200 {object} map[string]any
// @Router /api/tickets [get]
func (h *Handler) ListTickets(c *gin.Context) {
	q := service.ListQuery{
		Status:    models.TicketStatus(c.Query("status")),
		TodayOnly: c.Query("today_only") == "true" || c.Query("today_only") == "1",
	}
	if raw := c.Query("start_date"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "start_date must be YYYY-MM-DD", nil)
			return
		}
		q.StartDate = start
	}
	items, err := h.Tickets.List(c.Request.Context(), actor(c), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) AvailableTickets(c *gin.Context) {
	items, err := h.Tickets.Available(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) TicketYears(c *gin.Context) {
	years, err := h.Tickets.Years(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"years": years})
}

func (h *Handler) TicketCategories(c *gin.Context) {
	categories, err := h.Tickets.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) GetTicket(c *gin.Context) {
	t, err := h.Tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary Update ticket
// @Description Partial update. "assigned_agent": null releases the ticket back to open.
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param id path string true "Ticket ID"
// @Param body body UpdateTicketRequest true "Fields to change"
// @Success 200 {object} models.Ticket
// @Failure 409 {object} map[string]any
// @Router /api/tickets/{id} [put]
func (h *Handler) UpdateTicket(c *gin.Context) {
	var req UpdateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	upd := service.TicketUpdate{
		Status:      req.Status,
		AssigneeSet: req.AssignedAgent.Set,
		Assignee:    req.AssignedAgent.Value,
	}
	t, err := h.Engine.Update(c.Request.Context(), actor(c), c.Param("id"), upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary Claim ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param id path string true "Ticket ID"
// @Param body body ClaimRequest false "Target status"
// @Success 200 {object} models.Ticket
// @Failure 409 {object} map[string]any
// @Router /api/tickets/{id}/claim [post]
func (h *Handler) ClaimTicket(c *gin.Context) {
	var req ClaimRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	t, err := h.Engine.Claim(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) CompleteTicket(c *gin.Context) {
	t, err := h.Engine.Complete(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTicket(c *gin.Context) {
	if err := h.Tickets.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
