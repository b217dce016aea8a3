package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Notifications upgrades to a WebSocket that receives new_ticket and
// new_reply events. Browsers cannot set headers on the upgrade request, so
// the caller is named by the user_id query parameter.
func (h *Handler) Notifications(c *gin.Context) {
	id := c.Query("user_id")
	if id == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user_id is required", nil)
		return
	}
	u, err := h.Users.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !u.Approved() || !u.Role.Staff() {
		writeError(c, http.StatusForbidden, "PERMISSION_DENIED", "Only approved staff receive notifications", nil)
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, u.ID); err != nil {
		h.Logger.Debug().Err(err).Str("user_id", u.ID).Msg("notification socket closed")
	}
}
