package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/notify"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/store"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	ok   bool
}

func (n *recordingNotifier) Enqueue(msg notify.Message, onDone func(bool)) {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	if onDone != nil {
		onDone(n.ok)
	}
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

type targetedEvent struct {
	recipient string
	event     realtime.Event
}

type recordingHub struct {
	mu       sync.Mutex
	events   []realtime.Event
	targeted []targetedEvent
}

func (h *recordingHub) Broadcast(_ context.Context, ev realtime.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return 1
}

func (h *recordingHub) SendTo(_ context.Context, recipientID string, ev realtime.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targeted = append(h.targeted, targetedEvent{recipient: recipientID, event: ev})
	return true
}

// waitEvents polls until n broadcasts arrived, since they are delivered
// off the calling goroutine.
func (h *recordingHub) waitEvents(t *testing.T, n int) []realtime.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		got := append([]realtime.Event(nil), h.events...)
		h.mu.Unlock()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *recordingHub) waitTargeted(t *testing.T, n int) []targetedEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		got := append([]targetedEvent(nil), h.targeted...)
		h.mu.Unlock()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasEvent(events []realtime.Event, typ string) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (i *recordingInvalidator) Invalidate(_ context.Context, agentIDs ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, agentIDs)
}

type fixture struct {
	store    *store.Memory
	notifier *recordingNotifier
	hub      *recordingHub
	inval    *recordingInvalidator
	engine   *AssignmentEngine
	tickets  *TicketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		notifier: &recordingNotifier{ok: true},
		hub:      &recordingHub{},
		inval:    &recordingInvalidator{},
	}
	fx := Effects{
		Notifier: f.notifier,
		Realtime: f.hub,
		Cache:    f.inval,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return fixedNow },
	}
	f.engine = &AssignmentEngine{Store: f.store, GroupChatID: "-100", Effects: fx}
	f.tickets = &TicketService{Store: f.store, Effects: fx}
	return f
}

func (f *fixture) ticket(t *testing.T) models.Ticket {
	t.Helper()
	tk, err := f.tickets.Create(context.Background(), CreateTicketInput{
		ReporterChatID: "555",
		ReporterName:   "budi",
		Category:       "Provisioning",
		Subtype:        "reconfig",
		Description:    "ONT offline",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func agent(id, name string) Actor {
	return Actor{ID: id, Name: name, Role: models.RoleAgent}
}

func adminActor() Actor {
	return Actor{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin}
}
