package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/kafka"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/store"
)

const (
	ticketNumberAttempts = 3
	listLimit            = 1000
)

// TicketService covers ticket intake and the read side that does not go
// through the state machine.
type TicketService struct {
	Store store.Store
	Effects
}

type CreateTicketInput struct {
	TicketNumber    string
	ReporterChatID  string
	ReporterName    string
	Category        string
	Subtype         string
	TransactionType string
	Description     string
	Details         map[string]string
}

// Create stores a new open, unassigned ticket. Generated numbers are retried
// on collision; a caller-supplied number that already exists is a conflict.
func (s *TicketService) Create(ctx context.Context, in CreateTicketInput) (models.Ticket, error) {
	if strings.TrimSpace(in.Category) == "" || strings.TrimSpace(in.Description) == "" {
		return models.Ticket{}, errs.Validation("category and description are required")
	}
	now := s.now()
	t := models.Ticket{
		ID:              uuid.NewString(),
		ReporterChatID:  in.ReporterChatID,
		ReporterName:    in.ReporterName,
		Category:        strings.TrimSpace(in.Category),
		Subtype:         strings.ToUpper(strings.TrimSpace(in.Subtype)),
		TransactionType: in.TransactionType,
		Description:     in.Description,
		Details:         in.Details,
		Status:          models.StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	supplied := strings.TrimSpace(in.TicketNumber)
	var err error
	for attempt := 0; attempt < ticketNumberAttempts; attempt++ {
		t.TicketNumber = supplied
		if supplied == "" {
			t.TicketNumber = models.NewTicketNumber(now.In(time.Local))
		}
		err = s.Store.InsertTicket(ctx, t)
		if err == nil {
			break
		}
		if !errors.Is(err, errs.ErrDuplicateKey) {
			return models.Ticket{}, fmt.Errorf("insert ticket: %w", err)
		}
		if supplied != "" {
			return models.Ticket{}, errs.Conflict("ticket number %s already exists", supplied)
		}
		s.Logger.Warn().Str("ticket_number", t.TicketNumber).Msg("ticket number collision, regenerating")
	}
	if err != nil {
		return models.Ticket{}, errs.Conflict("could not allocate a unique ticket number")
	}

	s.Logger.Info().Str("ticket_id", t.ID).Str("ticket_number", t.TicketNumber).Msg("ticket created")
	s.invalidate(ctx)
	s.broadcast(realtime.Event{Type: realtime.EventNewTicket, Data: t})
	s.publish(kafka.EventTicketCreated, t)
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (models.Ticket, error) {
	return s.Store.GetTicket(ctx, id)
}

type ListQuery struct {
	Status    models.TicketStatus
	TodayOnly bool
	StartDate time.Time
}

// List returns tickets newest first. Agents listing without a status see
// their own tickets only; status=open always lists the unassigned pool.
func (s *TicketService) List(ctx context.Context, actor Actor, q ListQuery) ([]models.Ticket, error) {
	f := store.TicketFilter{Limit: listLimit}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, errs.Validation("invalid status %q", q.Status)
		}
		f.Statuses = []models.TicketStatus{q.Status}
	}
	switch {
	case !q.StartDate.IsZero():
		f.CreatedFrom = q.StartDate
	case q.TodayOnly:
		f.CreatedFrom = startOfDay(s.now())
	}
	switch {
	case q.Status == models.StatusOpen:
		f.Unassigned = true
	case actor.Role == models.RoleAgent:
		f.AssignedAgent = actor.ID
	}
	return s.Store.QueryTickets(ctx, f)
}

func (s *TicketService) Available(ctx context.Context) ([]models.Ticket, error) {
	return s.Store.QueryTickets(ctx, store.TicketFilter{
		Statuses:   []models.TicketStatus{models.StatusOpen},
		Unassigned: true,
		Limit:      listLimit,
	})
}

func (s *TicketService) Years(ctx context.Context) ([]int, error) {
	return s.Store.TicketYears(ctx)
}

func (s *TicketService) Categories(ctx context.Context) ([]string, error) {
	return s.Store.TicketCategories(ctx)
}

func (s *TicketService) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return errs.Permission("only admins can delete tickets")
	}
	t, err := s.Store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteTicket(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, deref(t.AssignedAgent))
	s.publish(kafka.EventTicketDeleted, t)
	return nil
}

func (s *TicketService) Comments(ctx context.Context, ticketID string) ([]models.Comment, error) {
	if _, err := s.Store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.Store.ListComments(ctx, ticketID)
}

func (s *TicketService) UnreadTicketIDs(ctx context.Context) ([]string, error) {
	return s.Store.UnreadTicketIDs(ctx)
}

// PendingDelivery is a staff comment the bot still has to relay.
type PendingDelivery struct {
	CommentID        string    `json:"comment_id"`
	TicketID         string    `json:"ticket_id"`
	TicketNumber     string    `json:"ticket_number"`
	UserTelegramID   string    `json:"user_telegram_id"`
	UserTelegramName string    `json:"user_telegram_name"`
	AgentUsername    string    `json:"agent_username"`
	Comment          string    `json:"comment"`
	ImageURL         string    `json:"image_url,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

func (s *TicketService) PendingDeliveries(ctx context.Context, limit int) ([]PendingDelivery, error) {
	comments, err := s.Store.ListUndeliveredComments(ctx, limit)
	if err != nil {
		return nil, err
	}
	tickets := make(map[string]models.Ticket)
	out := make([]PendingDelivery, 0, len(comments))
	for _, c := range comments {
		t, ok := tickets[c.TicketID]
		if !ok {
			t, err = s.Store.GetTicket(ctx, c.TicketID)
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			tickets[c.TicketID] = t
		}
		out = append(out, PendingDelivery{
			CommentID:        c.ID,
			TicketID:         t.ID,
			TicketNumber:     t.TicketNumber,
			UserTelegramID:   t.ReporterChatID,
			UserTelegramName: t.ReporterName,
			AgentUsername:    c.Username,
			Comment:          c.Comment,
			ImageURL:         c.ImageURL,
			Timestamp:        c.Timestamp,
		})
	}
	return out, nil
}

func (s *TicketService) MarkDelivered(ctx context.Context, commentID string) error {
	return s.Store.MarkCommentSent(ctx, commentID)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
