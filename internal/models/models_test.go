package models

import (
	"strings"
	"testing"
	"time"
)

func TestNewTicketNumberFormat(t *testing.T) {
	now := time.Date(2025, time.November, 15, 19, 28, 40, 0, time.UTC)
	for i := 0; i < 50; i++ {
		n := NewTicketNumber(now)
		if !ValidTicketNumber(n) {
			t.Fatalf("unexpected ticket number %q", n)
		}
		if !strings.HasPrefix(n, "INC11152025192840") {
			t.Fatalf("expected timestamp prefix, got %q", n)
		}
	}
}

func TestResolutionTime(t *testing.T) {
	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	done := created.Add(90 * time.Minute)
	tk := Ticket{CreatedAt: created}
	if tk.ResolutionTime() != 0 {
		t.Fatalf("open ticket should have no resolution time")
	}
	tk.CompletedAt = &done
	if tk.ResolutionTime() != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", tk.ResolutionTime())
	}
}

func TestStatusHelpers(t *testing.T) {
	if !StatusPending.Active() || !StatusInProgress.Active() {
		t.Fatalf("pending and in_progress are active")
	}
	if StatusOpen.Active() || StatusCompleted.Active() {
		t.Fatalf("open and completed are not active")
	}
	if TicketStatus("closed").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
