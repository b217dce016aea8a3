// Package store defines the persistence contract for tickets, comments and
// users. The PostgreSQL (internal/db) and MongoDB (internal/mongodb) backends
// implement it, and Memory backs tests and the "memory" driver.
package store

import (
	"context"
	"time"

	"github.com/botsdv/backend/internal/models"
)

// MaxScan bounds full-table reads used by statistics.
const MaxScan = 10000

type TicketFilter struct {
	Statuses      []models.TicketStatus
	AssignedAgent string
	Unassigned    bool
	Category      string
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
}

// Condition guards ConditionalUpdate. ClaimableBy matches tickets that are
// unassigned or already held by that agent; StatusIn restricts the current
// status. Empty fields are not checked.
type Condition struct {
	ClaimableBy string
	StatusIn    []models.TicketStatus
}

func (c Condition) Matches(t models.Ticket) bool {
	if c.ClaimableBy != "" && t.AssignedAgent != nil && *t.AssignedAgent != c.ClaimableBy {
		return false
	}
	if len(c.StatusIn) > 0 && !containsStatus(c.StatusIn, t.Status) {
		return false
	}
	return true
}

// Patch is the set of fields a conditional update writes. Assignee fields
// are only written when SetAssignee is true, so nil there means "clear".
type Patch struct {
	SetAssignee       bool
	AssignedAgent     *string
	AssignedAgentName *string
	Status            *models.TicketStatus
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func (p Patch) Apply(t *models.Ticket) {
	if p.SetAssignee {
		t.AssignedAgent = copyString(p.AssignedAgent)
		t.AssignedAgentName = copyString(p.AssignedAgentName)
		if t.AssignedAgent == nil {
			t.AssignedAgentName = nil
		}
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		t.CompletedAt = &at
	}
	t.UpdatedAt = p.UpdatedAt
}

type UserFilter struct {
	Role   models.Role
	Status models.UserStatus
}

type TicketStore interface {
	InsertTicket(ctx context.Context, t models.Ticket) error
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	GetTicketByNumber(ctx context.Context, number string) (models.Ticket, error)
	// ConditionalUpdate applies patch only if cond holds at write time and
	// reports whether a ticket matched. It is the single serialization point
	// for assignment changes.
	ConditionalUpdate(ctx context.Context, id string, cond Condition, patch Patch) (bool, error)
	QueryTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	TicketYears(ctx context.Context) ([]int, error)
	TicketCategories(ctx context.Context) ([]string, error)
}

type CommentStore interface {
	InsertComment(ctx context.Context, c models.Comment) error
	ListComments(ctx context.Context, ticketID string) ([]models.Comment, error)
	MarkCommentsRead(ctx context.Context, ticketID string) (int64, error)
	MarkCommentSent(ctx context.Context, id string) error
	ListUndeliveredComments(ctx context.Context, limit int) ([]models.Comment, error)
	UnreadTicketIDs(ctx context.Context) ([]string, error)
}

type UserStore interface {
	InsertUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	ApproveUser(ctx context.Context, id string, role models.Role) (models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type Store interface {
	TicketStore
	CommentStore
	UserStore
	Ping(ctx context.Context) error
	Close()
}

func containsStatus(list []models.TicketStatus, s models.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
