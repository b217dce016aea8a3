package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botsdv/backend/internal/service"
)

type CommentRequest struct {
	Comment      string `json:"comment" validate:"required_without=ImageURL,max=4000"`
	ImageURL     string `json:"image_url" validate:"omitempty,url"`
	ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
}

func (r CommentRequest) input() service.CommentInput {
	return service.CommentInput{Text: r.Comment, ImageURL: r.ImageURL, ThumbnailURL: r.ThumbnailURL}
}

func (h *Handler) ListComments(c *gin.Context) {
	items, err := h.Tickets.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Add comment
// @Description Staff comments are relayed to the reporter's chat; reporter comments are pushed to agents.
// @Tags comments
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param id path string true "Ticket ID"
// @Param body body CommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 403 {object} map[string]any
// @Router /api/tickets/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	var req CommentRequest
	if !h.bind(c, &req) {
		return
	}
	comment, err := h.Engine.AddComment(c.Request.Context(), actor(c), c.Param("id"), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) MarkCommentsRead(c *gin.Context) {
	n, err := h.Engine.MarkCommentsRead(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) UnreadReplies(c *gin.Context) {
	ids, err := h.Tickets.UnreadTicketIDs(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_ids": ids})
}
