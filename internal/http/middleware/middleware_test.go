package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
)

type users map[string]models.User

func (u users) GetUser(_ context.Context, id string) (models.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return models.User{}, errs.NotFound("user %s not found", id)
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	known := users{
		"agent":   {ID: "agent", Username: "agent", Role: models.RoleAgent, Status: models.UserApproved},
		"pending": {ID: "pending", Username: "pending", Role: models.RoleUser, Status: models.UserPending},
	}
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop()))
	r.GET("/bot", BotKey("secret"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	authed := r.Group("", Identity(known, zerolog.Nop()))
	authed.GET("/me", func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.ID)
	})
	authed.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestIdentity(t *testing.T) {
	r := newEngine()
	cases := []struct {
		name   string
		path   string
		userID string
		want   int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"unknown user", "/me", "ghost", http.StatusUnauthorized},
		{"pending user", "/me", "pending", http.StatusForbidden},
		{"approved agent", "/me", "agent", http.StatusOK},
		{"agent on admin route", "/admin", "agent", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.userID != "" {
				req.Header.Set(UserIDHeader, tc.userID)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Fatal("missing request id header")
			}
		})
	}
}

func TestBotKey(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/bot", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/bot", nil)
	req.Header.Set(BotKeyHeader, "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestRequestIDIsPreserved(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "req_fixed")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req_fixed" {
		t.Fatalf("request id = %q", got)
	}
}
