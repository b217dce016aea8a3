package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/store"
)

// collidingStore rejects the first collisions inserts as duplicate numbers.
type collidingStore struct {
	*store.Memory
	collisions int32
	inserts    atomic.Int32
	numbers    []string
}

func (s *collidingStore) InsertTicket(ctx context.Context, t models.Ticket) error {
	s.numbers = append(s.numbers, t.TicketNumber)
	if s.inserts.Add(1) <= s.collisions {
		return errs.Duplicate("ticket_number", nil)
	}
	return s.Memory.InsertTicket(ctx, t)
}

// blockingHub holds every broadcast until release is closed.
type blockingHub struct {
	release chan struct{}
	done    chan struct{}
}

func (h *blockingHub) Broadcast(ctx context.Context, _ realtime.Event) int {
	select {
	case <-h.release:
	case <-ctx.Done():
	}
	close(h.done)
	return 0
}

func (h *blockingHub) SendTo(context.Context, string, realtime.Event) bool { return false }

func quietEffects() Effects {
	return Effects{Logger: zerolog.Nop(), Now: func() time.Time { return fixedNow }}
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	tk := f.ticket(t)

	if tk.Status != models.StatusOpen || tk.AssignedAgent != nil {
		t.Fatalf("new ticket should be open and unassigned: %+v", tk)
	}
	if !models.ValidTicketNumber(tk.TicketNumber) {
		t.Fatalf("bad ticket number %q", tk.TicketNumber)
	}
	if tk.Subtype != "RECONFIG" {
		t.Fatalf("subtype should be upper-cased, got %q", tk.Subtype)
	}
	if got := f.hub.waitEvents(t, 1); len(got) != 1 || got[0].Type != "new_ticket" {
		t.Fatalf("expected new_ticket broadcast, got %+v", got)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.tickets.Create(context.Background(), CreateTicketInput{Category: "x"})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateTicketSuppliedNumberConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateTicketInput{TicketNumber: "INC03152026100000ABC", Category: "c", Description: "d"}
	if _, err := f.tickets.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := f.tickets.Create(ctx, in); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateTicketRegeneratesCollidingNumber(t *testing.T) {
	st := &collidingStore{Memory: store.NewMemory(), collisions: 2}
	svc := &TicketService{Store: st, Effects: quietEffects()}

	tk, err := svc.Create(context.Background(), CreateTicketInput{Category: "c", Description: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.inserts.Load() != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", st.inserts.Load())
	}
	if !models.ValidTicketNumber(tk.TicketNumber) || tk.TicketNumber != st.numbers[2] {
		t.Fatalf("expected the last generated number %q, got %q", st.numbers[2], tk.TicketNumber)
	}
	stored, err := st.GetTicket(context.Background(), tk.ID)
	if err != nil || stored.TicketNumber != tk.TicketNumber {
		t.Fatalf("ticket not stored under its final number: %+v %v", stored, err)
	}
}

func TestCreateTicketGivesUpAfterRepeatedCollisions(t *testing.T) {
	st := &collidingStore{Memory: store.NewMemory(), collisions: 3}
	svc := &TicketService{Store: st, Effects: quietEffects()}

	_, err := svc.Create(context.Background(), CreateTicketInput{Category: "c", Description: "d"})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if st.inserts.Load() != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", st.inserts.Load())
	}
}

func TestCreateDoesNotWaitForRealtimeDelivery(t *testing.T) {
	hub := &blockingHub{release: make(chan struct{}), done: make(chan struct{})}
	fx := quietEffects()
	fx.Realtime = hub
	svc := &TicketService{Store: store.NewMemory(), Effects: fx}

	start := time.Now()
	if _, err := svc.Create(context.Background(), CreateTicketInput{Category: "c", Description: "d"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("create waited on the broadcast: %s", elapsed)
	}

	close(hub.release)
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast never ran")
	}
}

func TestListSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.ticket(t)
	f.ticket(t)
	alice := agent("a1", "Alice")
	if _, err := f.engine.Claim(ctx, alice, first.ID, ""); err != nil {
		t.Fatalf("claim: %v", err)
	}

	open, err := f.tickets.List(ctx, alice, ListQuery{Status: models.StatusOpen})
	if err != nil || len(open) != 1 {
		t.Fatalf("open pool: %v %d", err, len(open))
	}
	mine, err := f.tickets.List(ctx, alice, ListQuery{})
	if err != nil || len(mine) != 1 || mine[0].ID != first.ID {
		t.Fatalf("agent listing: %v %+v", err, mine)
	}
	all, err := f.tickets.List(ctx, adminActor(), ListQuery{})
	if err != nil || len(all) != 2 {
		t.Fatalf("admin listing: %v %d", err, len(all))
	}
	if _, err := f.tickets.List(ctx, adminActor(), ListQuery{Status: "bogus"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteTicketAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.ticket(t)

	if err := f.tickets.Delete(ctx, agent("a1", "Alice"), tk.ID); !errors.Is(err, errs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if err := f.tickets.Delete(ctx, adminActor(), tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.tickets.Get(ctx, tk.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := &UserService{Store: f.store, Effects: f.tickets.Effects}

	u, err := users.Register(ctx, RegisterInput{Username: "dewi", FullName: "Dewi"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Status != models.UserPending {
		t.Fatalf("new users start pending, got %s", u.Status)
	}
	if _, err := users.Register(ctx, RegisterInput{Username: "dewi"}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := users.Approve(ctx, agent("a1", "Alice"), u.ID, models.RoleAgent); !errors.Is(err, errs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, err := users.Approve(ctx, adminActor(), u.ID, models.RoleUser); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	approved, err := users.Approve(ctx, adminActor(), u.ID, models.RoleAgent)
	if err != nil || !approved.Approved() || approved.Role != models.RoleAgent {
		t.Fatalf("approve: %v %+v", err, approved)
	}
	agents, err := users.Agents(ctx)
	if err != nil || len(agents) != 1 {
		t.Fatalf("agents: %v %d", err, len(agents))
	}
	if err := users.Delete(ctx, adminActor(), "admin-1"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("self delete: expected validation error, got %v", err)
	}
	if err := users.Delete(ctx, adminActor(), u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
