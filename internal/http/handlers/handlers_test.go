package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/cache"
	"github.com/botsdv/backend/internal/http/middleware"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/service"
	"github.com/botsdv/backend/internal/store"
)

type testServer struct {
	router *gin.Engine
	store  *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "alice", Username: "alice", FullName: "Alice", Role: models.RoleAgent, Status: models.UserApproved},
		{ID: "bob", Username: "bob", FullName: "Bob", Role: models.RoleAgent, Status: models.UserApproved},
		{ID: "root", Username: "root", Role: models.RoleAdmin, Status: models.UserApproved},
	} {
		if err := mem.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	logger := zerolog.Nop()
	dashCache := cache.NewMemory()
	fx := service.Effects{Cache: &cache.Invalidator{Cache: dashCache, Logger: logger}, Logger: logger}
	dashboards := &service.DashboardAggregator{Store: mem, Cache: dashCache, Logger: logger}
	h := &Handler{
		Store:      mem,
		Tickets:    &service.TicketService{Store: mem, Effects: fx},
		Engine:     &service.AssignmentEngine{Store: mem, Effects: fx},
		Users:      &service.UserService{Store: mem, Effects: fx},
		Dashboards: dashboards,
		Exporter:   &service.Exporter{Store: mem, Dashboards: dashboards},
		Hub:        realtime.NewHub(logger),
		Validator:  validator.New(),
		Logger:     logger,
	}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	authed := r.Group("/api", middleware.Identity(mem, logger))
	authed.POST("/tickets", h.CreateTicket)
	authed.GET("/tickets", h.ListTickets)
	authed.GET("/tickets/:id", h.GetTicket)
	authed.PUT("/tickets/:id", h.UpdateTicket)
	authed.POST("/tickets/:id/claim", h.ClaimTicket)
	authed.POST("/tickets/:id/complete", h.CompleteTicket)
	authed.GET("/statistics/admin-dashboard", h.AdminDashboard)
	authed.GET("/statistics/agent-dashboard/:agent_id", h.AgentDashboard)
	authed.GET("/export/tickets", h.ExportTickets)
	return &testServer{router: r, store: mem}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createTicket(t *testing.T) models.Ticket {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/tickets", "alice", map[string]any{
		"user_telegram_id":   "555",
		"user_telegram_name": "budi",
		"category":           "Provisioning",
		"subtype":            "INTEGRASI",
		"description":        "ONT offline",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tk models.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &tk); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return tk
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateTicketIsOpen(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)
	if tk.Status != models.StatusOpen || tk.AssignedAgent != nil || tk.TicketNumber == "" {
		t.Fatalf("unexpected ticket: %+v", tk)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/tickets", "alice", map[string]any{"category": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeError(t, w).Error.Code; code != "VALIDATION_ERROR" {
		t.Fatalf("code = %s", code)
	}
}

func TestClaimThenConflict(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)

	w := s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/claim", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/claim", "bob", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second claim: expected 409, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != "CONFLICT" || body.Error.Details["assigned_agent_name"] != "Alice" {
		t.Fatalf("unexpected conflict body: %+v", body)
	}
	if !strings.Contains(body.Error.Message, "Alice") {
		t.Fatalf("message should name the holder: %q", body.Error.Message)
	}
}

func TestUpdateNullAssigneeUnassigns(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)
	if w := s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/claim", "alice", map[string]string{"status": "pending"}); w.Code != http.StatusOK {
		t.Fatalf("claim: %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPut, "/api/tickets/"+tk.ID, strings.NewReader(`{"assigned_agent": null}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "alice")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unassign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got models.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusOpen || got.AssignedAgent != nil {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}

func TestUpdateWithoutFieldsIsRejected(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)
	w := s.do(t, http.MethodPut, "/api/tickets/"+tk.ID, "alice", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCompleteTwiceIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)
	s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/claim", "alice", nil)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/complete", "alice", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("complete #%d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestGetUnknownTicket(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/tickets/missing", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAgentDashboardAccess(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/statistics/agent-dashboard/alice", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("own dashboard: expected 200, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/statistics/agent-dashboard/alice", "bob", nil); w.Code != http.StatusForbidden {
		t.Fatalf("other dashboard: expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/statistics/agent-dashboard/alice", "root", nil); w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
}

func TestAdminDashboardReflectsClaim(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)

	read := func() service.AdminDashboard {
		w := s.do(t, http.MethodGet, "/api/statistics/admin-dashboard", "root", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("dashboard: %d", w.Code)
		}
		var d service.AdminDashboard
		if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
			t.Fatal(err)
		}
		return d
	}
	if d := read(); d.Today.Open != 1 {
		t.Fatalf("expected one open ticket, got %+v", d.Today)
	}
	s.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/claim", "alice", nil)
	if d := read(); d.Today.Open != 0 || d.Today.InProgress != 1 {
		t.Fatalf("claim should invalidate the cached dashboard, got %+v", d.Today)
	}
}

func TestExportTicketsCSV(t *testing.T) {
	s := newTestServer(t)
	tk := s.createTicket(t)
	w := s.do(t, http.MethodGet, "/api/export/tickets?year=all", "root", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "tickets_") {
		t.Fatalf("missing attachment header")
	}
	if !strings.Contains(w.Body.String(), tk.TicketNumber) {
		t.Fatalf("export missing ticket: %s", w.Body.String())
	}
}
