package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/service"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	FullName string `json:"full_name" validate:"max=128"`
}

// @Summary Register user
// @Description Creates a pending account. An admin must approve it before it can act.
// @Tags users
// @Accept json
// @Produce json
// @Param body body RegisterRequest true "Account"
// @Success 201 {object} models.User
// @Failure 409 {object} map[string]any
// @Router /api/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Users.Register(c.Request.Context(), service.RegisterInput{Username: req.Username, FullName: req.FullName})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) PendingUsers(c *gin.Context) {
	items, err := h.Users.Pending(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Agents(c *gin.Context) {
	items, err := h.Users.Agents(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ApproveUser(c *gin.Context) {
	role := models.Role(c.DefaultQuery("role", string(models.RoleAgent)))
	u, err := h.Users.Approve(c.Request.Context(), actor(c), c.Param("id"), role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
