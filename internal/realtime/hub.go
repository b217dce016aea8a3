// Package realtime keeps the registry of live agent sessions and fans
// ticket events out to them.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/metrics"
)

const (
	EventNewTicket      = "new_ticket"
	EventNewReply       = "new_reply"
	EventTicketAssigned = "ticket_assigned"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Session is one live connection. Send must be safe for concurrent use.
type Session interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[Session]struct{}
	origins  []string
	logger   zerolog.Logger
}

// NewHub returns an empty registry. allowedOrigins limits which browser
// origins may open a session; "*" allows any and none allows only
// same-origin requests.
func NewHub(logger zerolog.Logger, allowedOrigins ...string) *Hub {
	return &Hub{
		sessions: make(map[string]map[Session]struct{}),
		origins:  allowedOrigins,
		logger:   logger.With().Str("component", "realtime").Logger(),
	}
}

func (h *Hub) Register(recipientID string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[recipientID]
	if !ok {
		set = make(map[Session]struct{})
		h.sessions[recipientID] = set
	}
	if _, dup := set[s]; !dup {
		set[s] = struct{}{}
		metrics.RealtimeSessions.Inc()
	}
}

func (h *Hub) Unregister(recipientID string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(recipientID, s)
}

func (h *Hub) removeLocked(recipientID string, s Session) {
	set, ok := h.sessions[recipientID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	metrics.RealtimeSessions.Dec()
	if len(set) == 0 {
		delete(h.sessions, recipientID)
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

type target struct {
	recipientID string
	session     Session
}

// Broadcast delivers ev to every live session and prunes the ones whose
// delivery fails. It returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, ev Event) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Type).Msg("encode event")
		return 0
	}

	h.mu.RLock()
	targets := make([]target, 0)
	for id, set := range h.sessions {
		for s := range set {
			targets = append(targets, target{recipientID: id, session: s})
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []target
	for _, tg := range targets {
		if err := tg.session.Send(ctx, payload); err != nil {
			dead = append(dead, tg)
			continue
		}
		delivered++
	}
	h.prune(dead)
	return delivered
}

// SendTo delivers ev to the sessions of one recipient. It reports whether
// at least one session received it.
func (h *Hub) SendTo(ctx context.Context, recipientID string, ev Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Type).Msg("encode event")
		return false
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.sessions[recipientID]))
	for s := range h.sessions[recipientID] {
		targets = append(targets, target{recipientID: recipientID, session: s})
	}
	h.mu.RUnlock()

	ok := false
	var dead []target
	for _, tg := range targets {
		if err := tg.session.Send(ctx, payload); err != nil {
			dead = append(dead, tg)
			continue
		}
		ok = true
	}
	h.prune(dead)
	return ok
}

func (h *Hub) prune(dead []target) {
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, tg := range dead {
		h.removeLocked(tg.recipientID, tg.session)
	}
	h.mu.Unlock()
	for _, tg := range dead {
		_ = tg.session.Close()
		h.logger.Debug().Str("recipient", tg.recipientID).Msg("pruned dead session")
	}
}
