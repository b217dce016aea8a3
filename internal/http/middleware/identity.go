package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/service"
)

const (
	UserIDHeader = "X-User-Id"
	actorKey     = "actor"
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Identity resolves the caller named by the X-User-Id header, which the
// auth gateway in front of the service sets after verifying the session.
func Identity(users UserLookup, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user identity")
			return
		}
		u, err := users.GetUser(c.Request.Context(), id)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown user")
			return
		case err != nil:
			logger.Error().Err(err).Str("user_id", id).Msg("identity lookup failed")
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Identity lookup failed")
			return
		case !u.Approved():
			abort(c, http.StatusForbidden, "PERMISSION_DENIED", "Account is waiting for approval")
			return
		}
		c.Set(actorKey, service.ActorFrom(u))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !slices.Contains(roles, actor.Role) {
			abort(c, http.StatusForbidden, "PERMISSION_DENIED", "Insufficient role")
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (service.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := v.(service.Actor)
	return actor, ok
}
