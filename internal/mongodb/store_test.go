package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

func TestConditionalClaimIntegration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, uri, "botsdv_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	tk := models.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: models.NewTicketNumber(now),
		Category:     "network",
		Status:       models.StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.InsertTicket(ctx, tk); err != nil {
		t.Fatalf("insert: %v", err)
	}
	defer func() { _ = s.DeleteTicket(context.Background(), tk.ID) }()

	dup := tk
	dup.ID = uuid.NewString()
	if err := s.InsertTicket(ctx, dup); !errors.Is(err, errs.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}

	status := models.StatusInProgress
	a1, a2 := "agent-1", "agent-2"
	claimable := []models.TicketStatus{models.StatusOpen, models.StatusInProgress, models.StatusPending}
	ok, err := s.ConditionalUpdate(ctx, tk.ID, store.Condition{ClaimableBy: a1, StatusIn: claimable},
		store.Patch{SetAssignee: true, AssignedAgent: &a1, AssignedAgentName: &a1, Status: &status, UpdatedAt: now})
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.ConditionalUpdate(ctx, tk.ID, store.Condition{ClaimableBy: a2, StatusIn: claimable},
		store.Patch{SetAssignee: true, AssignedAgent: &a2, AssignedAgentName: &a2, Status: &status, UpdatedAt: now})
	if err != nil || ok {
		t.Fatalf("second claim must not match: ok=%v err=%v", ok, err)
	}
}
