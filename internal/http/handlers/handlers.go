package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/http/middleware"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/service"
	"github.com/botsdv/backend/internal/store"
)

type Handler struct {
	Store      store.Store
	Tickets    *service.TicketService
	Engine     *service.AssignmentEngine
	Users      *service.UserService
	Dashboards *service.DashboardAggregator
	Exporter   *service.Exporter
	Hub        *realtime.Hub
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// respondError maps a service error onto the JSON error envelope. Claim
// conflicts carry the current holder in details.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("request_id", c.GetString(middleware.RequestIDHeader)).Msg("request failed")
		writeError(c, status, code, "Internal server error", nil)
		return
	}
	var details any
	var e *errs.Error
	if errors.As(err, &e) && e.Holder != "" {
		details = gin.H{"assigned_agent_name": e.Holder}
	}
	writeError(c, status, code, errs.Message(err), details)
}

func actor(c *gin.Context) service.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
