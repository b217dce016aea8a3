package models

import "time"

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusPending    TicketStatus = "pending"
	StatusInProgress TicketStatus = "in_progress"
	StatusCompleted  TicketStatus = "completed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Active statuses are the ones an agent can hold a ticket in.
func (s TicketStatus) Active() bool {
	return s == StatusInProgress || s == StatusPending
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Staff reports whether the role acts on tickets rather than filing them.
func (r Role) Staff() bool {
	return r == RoleAgent || r == RoleAdmin
}

type UserStatus string

const (
	UserPending  UserStatus = "pending"
	UserApproved UserStatus = "approved"
)

type Ticket struct {
	ID                string            `json:"id" bson:"_id"`
	TicketNumber      string            `json:"ticket_number" bson:"ticket_number"`
	ReporterChatID    string            `json:"user_telegram_id" bson:"user_telegram_id"`
	ReporterName      string            `json:"user_telegram_name" bson:"user_telegram_name"`
	Category          string            `json:"category" bson:"category"`
	Subtype           string            `json:"subtype,omitempty" bson:"subtype,omitempty"`
	TransactionType   string            `json:"transaction_type,omitempty" bson:"transaction_type,omitempty"`
	Description       string            `json:"description" bson:"description"`
	Details           map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	Status            TicketStatus      `json:"status" bson:"status"`
	AssignedAgent     *string           `json:"assigned_agent" bson:"assigned_agent"`
	AssignedAgentName *string           `json:"assigned_agent_name" bson:"assigned_agent_name"`
	CreatedAt         time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" bson:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at" bson:"completed_at"`
}

// HeldBy reports whether agentID currently holds the ticket.
func (t Ticket) HeldBy(agentID string) bool {
	return t.AssignedAgent != nil && *t.AssignedAgent == agentID
}

func (t Ticket) HolderName() string {
	if t.AssignedAgentName != nil && *t.AssignedAgentName != "" {
		return *t.AssignedAgentName
	}
	if t.AssignedAgent != nil {
		return *t.AssignedAgent
	}
	return ""
}

// ResolutionTime is the time from creation to completion, zero when the
// ticket has not been completed.
func (t Ticket) ResolutionTime() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	d := t.CompletedAt.Sub(t.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

type Comment struct {
	ID             string    `json:"id" bson:"_id"`
	TicketID       string    `json:"ticket_id" bson:"ticket_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	Username       string    `json:"username" bson:"username"`
	Role           Role      `json:"role" bson:"role"`
	Comment        string    `json:"comment" bson:"comment"`
	ImageURL       string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty" bson:"thumbnail_url,omitempty"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
	SentToTelegram bool      `json:"sent_to_telegram" bson:"sent_to_telegram"`
	ReadByAgent    bool      `json:"read_by_agent" bson:"read_by_agent"`
}

type User struct {
	ID        string     `json:"id" bson:"_id"`
	Username  string     `json:"username" bson:"username"`
	FullName  string     `json:"full_name" bson:"full_name"`
	Role      Role       `json:"role" bson:"role"`
	Status    UserStatus `json:"status" bson:"status"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}

func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u User) Approved() bool {
	return u.Status == UserApproved
}
