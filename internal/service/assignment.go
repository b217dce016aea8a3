package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/kafka"
	"github.com/botsdv/backend/internal/metrics"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/notify"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/store"
)

var (
	claimable = []models.TicketStatus{models.StatusOpen, models.StatusInProgress, models.StatusPending}
	active    = []models.TicketStatus{models.StatusInProgress, models.StatusPending}
)

// AssignmentEngine owns the ticket state machine:
//
//	open --claim--> in_progress|pending --complete--> completed
//	in_progress <--> pending
//	in_progress|pending --unassign--> open
//
// completed is terminal. Every transition is a single conditional store
// update, so two agents racing for a ticket resolve to one winner and one
// ConflictError naming the winner.
type AssignmentEngine struct {
	Store       store.Store
	GroupChatID string
	Effects
}

// TicketUpdate is a partial update. AssigneeSet distinguishes an explicit
// null assignee (unassign) from an absent one.
type TicketUpdate struct {
	Status      *models.TicketStatus
	AssigneeSet bool
	Assignee    *string
}

// Update routes a partial update to the matching transition.
func (e *AssignmentEngine) Update(ctx context.Context, actor Actor, ticketID string, upd TicketUpdate) (models.Ticket, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return models.Ticket{}, errs.Validation("invalid status %q", *upd.Status)
	}
	switch {
	case upd.AssigneeSet && upd.Assignee == nil:
		return e.Unassign(ctx, actor, ticketID)
	case upd.AssigneeSet:
		target := models.StatusInProgress
		if upd.Status != nil && upd.Status.Active() {
			target = *upd.Status
		}
		t, err := e.Assign(ctx, actor, ticketID, *upd.Assignee, target)
		if err != nil || upd.Status == nil || *upd.Status != models.StatusCompleted {
			return t, err
		}
		return e.Complete(ctx, actor, ticketID)
	case upd.Status != nil:
		return e.SetStatus(ctx, actor, ticketID, *upd.Status)
	default:
		return models.Ticket{}, errs.Validation("nothing to update")
	}
}

// Claim assigns the ticket to the calling agent.
func (e *AssignmentEngine) Claim(ctx context.Context, actor Actor, ticketID string, target models.TicketStatus) (models.Ticket, error) {
	if !actor.Role.Staff() {
		return models.Ticket{}, errs.Permission("only agents can take tickets")
	}
	return e.claimFor(ctx, ticketID, actor.ID, actor.Name, target)
}

// Assign gives the ticket to assigneeID. Agents may only assign themselves.
func (e *AssignmentEngine) Assign(ctx context.Context, actor Actor, ticketID, assigneeID string, target models.TicketStatus) (models.Ticket, error) {
	if !actor.Role.Staff() {
		return models.Ticket{}, errs.Permission("only agents can take tickets")
	}
	if assigneeID == actor.ID {
		return e.claimFor(ctx, ticketID, actor.ID, actor.Name, target)
	}
	if actor.Role != models.RoleAdmin {
		return models.Ticket{}, errs.Permission("agents can only assign tickets to themselves")
	}
	assignee, err := e.Store.GetUser(ctx, assigneeID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !assignee.Approved() || !assignee.Role.Staff() {
		return models.Ticket{}, errs.Validation("user %s is not an approved agent", assigneeID)
	}
	updated, err := e.claimFor(ctx, ticketID, assignee.ID, assignee.DisplayName(), target)
	if err != nil {
		return models.Ticket{}, err
	}
	e.sendTo(assignee.ID, realtime.Event{Type: realtime.EventTicketAssigned, Data: updated})
	return updated, nil
}

func (e *AssignmentEngine) claimFor(ctx context.Context, ticketID, agentID, agentName string, target models.TicketStatus) (models.Ticket, error) {
	if target == "" {
		target = models.StatusInProgress
	}
	if !target.Active() {
		return models.Ticket{}, errs.Validation("claim target must be in_progress or pending, got %q", target)
	}

	current, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if current.Status == models.StatusCompleted {
		metrics.Claims.WithLabelValues("conflict").Inc()
		return models.Ticket{}, errs.Conflict("ticket %s is already completed", current.TicketNumber)
	}
	if current.AssignedAgent != nil && *current.AssignedAgent != agentID {
		metrics.Claims.WithLabelValues("conflict").Inc()
		return models.Ticket{}, errs.TakenBy(current.HolderName())
	}

	patch := store.Patch{
		SetAssignee:       true,
		AssignedAgent:     stringPtr(agentID),
		AssignedAgentName: stringPtr(agentName),
		Status:            &target,
		UpdatedAt:         e.now(),
	}
	ok, err := e.Store.ConditionalUpdate(ctx, ticketID, store.Condition{ClaimableBy: agentID, StatusIn: claimable}, patch)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("claim ticket: %w", err)
	}
	if !ok {
		metrics.Claims.WithLabelValues("conflict").Inc()
		return models.Ticket{}, e.conflictFor(ctx, ticketID, agentID)
	}
	metrics.Claims.WithLabelValues("won").Inc()
	metrics.Transitions.WithLabelValues(string(target)).Inc()

	previous := deref(current.AssignedAgent)
	updated := current
	patch.Apply(&updated)

	e.invalidate(ctx, previous, agentID)
	if previous != agentID {
		e.Logger.Info().Str("ticket_id", ticketID).Str("agent_id", agentID).Msg("ticket claimed")
		e.notify(notify.TicketTaken(updated, agentName), nil)
		if e.GroupChatID != "" {
			e.notify(notify.TicketTakenGroup(e.GroupChatID, updated, agentName), nil)
		}
		e.publish(kafka.EventTicketClaimed, updated)
	} else if current.Status != target {
		e.publish(kafka.EventTicketStatus, updated)
	}
	return updated, nil
}

// Unassign releases the ticket back to the open pool.
func (e *AssignmentEngine) Unassign(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	if !actor.Role.Staff() {
		return models.Ticket{}, errs.Permission("only agents can release tickets")
	}
	current, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if current.Status == models.StatusCompleted {
		return models.Ticket{}, errs.Conflict("ticket %s is already completed", current.TicketNumber)
	}
	if actor.Role == models.RoleAgent && current.AssignedAgent != nil && *current.AssignedAgent != actor.ID {
		return models.Ticket{}, errs.Permission("ticket is held by %s", current.HolderName())
	}

	open := models.StatusOpen
	patch := store.Patch{SetAssignee: true, Status: &open, UpdatedAt: e.now()}
	cond := store.Condition{StatusIn: claimable}
	if actor.Role == models.RoleAgent {
		cond.ClaimableBy = actor.ID
	}
	ok, err := e.Store.ConditionalUpdate(ctx, ticketID, cond, patch)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("unassign ticket: %w", err)
	}
	if !ok {
		return models.Ticket{}, e.conflictFor(ctx, ticketID, actor.ID)
	}
	metrics.Transitions.WithLabelValues(string(open)).Inc()

	updated := current
	patch.Apply(&updated)
	e.invalidate(ctx, deref(current.AssignedAgent))
	e.publish(kafka.EventTicketUnassigned, updated)
	return updated, nil
}

// Complete closes the ticket. Completing a completed ticket returns it
// unchanged and sends nothing.
func (e *AssignmentEngine) Complete(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	if !actor.Role.Staff() {
		return models.Ticket{}, errs.Permission("only agents can complete tickets")
	}
	current, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if current.Status == models.StatusCompleted {
		return current, nil
	}
	if current.Status == models.StatusOpen {
		return models.Ticket{}, errs.Conflict("ticket %s must be taken before it can be completed", current.TicketNumber)
	}
	if actor.Role == models.RoleAgent && !current.HeldBy(actor.ID) {
		return models.Ticket{}, errs.TakenBy(current.HolderName())
	}

	now := e.now()
	done := models.StatusCompleted
	patch := store.Patch{Status: &done, CompletedAt: &now, UpdatedAt: now}
	cond := store.Condition{StatusIn: active}
	if actor.Role == models.RoleAgent {
		cond.ClaimableBy = actor.ID
	}
	ok, err := e.Store.ConditionalUpdate(ctx, ticketID, cond, patch)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("complete ticket: %w", err)
	}
	if !ok {
		latest, err := e.Store.GetTicket(ctx, ticketID)
		if err != nil {
			return models.Ticket{}, err
		}
		if latest.Status == models.StatusCompleted {
			return latest, nil
		}
		return models.Ticket{}, e.conflictFrom(latest, actor.ID)
	}
	metrics.Transitions.WithLabelValues(string(done)).Inc()

	updated := current
	patch.Apply(&updated)
	e.Logger.Info().Str("ticket_id", ticketID).Str("agent_id", deref(updated.AssignedAgent)).Msg("ticket completed")
	e.invalidate(ctx, deref(updated.AssignedAgent))
	e.notify(notify.TicketCompleted(updated, updated.HolderName()), nil)
	e.publish(kafka.EventTicketCompleted, updated)
	return updated, nil
}

// SetStatus moves a ticket to status through the matching transition.
func (e *AssignmentEngine) SetStatus(ctx context.Context, actor Actor, ticketID string, status models.TicketStatus) (models.Ticket, error) {
	switch status {
	case models.StatusCompleted:
		return e.Complete(ctx, actor, ticketID)
	case models.StatusOpen:
		return e.Unassign(ctx, actor, ticketID)
	case models.StatusInProgress, models.StatusPending:
	default:
		return models.Ticket{}, errs.Validation("invalid status %q", status)
	}
	if !actor.Role.Staff() {
		return models.Ticket{}, errs.Permission("only agents can change ticket status")
	}

	current, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	switch {
	case current.Status == models.StatusCompleted:
		return models.Ticket{}, errs.Conflict("ticket %s is already completed", current.TicketNumber)
	case current.Status == models.StatusOpen:
		return e.claimFor(ctx, ticketID, actor.ID, actor.Name, status)
	case current.Status == status:
		return current, nil
	case actor.Role == models.RoleAgent && !current.HeldBy(actor.ID):
		return models.Ticket{}, errs.TakenBy(current.HolderName())
	}

	patch := store.Patch{Status: &status, UpdatedAt: e.now()}
	cond := store.Condition{StatusIn: active}
	if actor.Role == models.RoleAgent {
		cond.ClaimableBy = actor.ID
	}
	ok, err := e.Store.ConditionalUpdate(ctx, ticketID, cond, patch)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("update ticket status: %w", err)
	}
	if !ok {
		return models.Ticket{}, e.conflictFor(ctx, ticketID, actor.ID)
	}
	metrics.Transitions.WithLabelValues(string(status)).Inc()

	updated := current
	patch.Apply(&updated)
	e.invalidate(ctx, deref(updated.AssignedAgent))
	e.publish(kafka.EventTicketStatus, updated)
	return updated, nil
}

type CommentInput struct {
	Text         string
	ImageURL     string
	ThumbnailURL string
}

// AddComment stores a comment from an authenticated caller. Staff comments
// go to the reporter's chat with a reply button; reporter comments are
// pushed to live agent sessions.
func (e *AssignmentEngine) AddComment(ctx context.Context, actor Actor, ticketID string, in CommentInput) (models.Comment, error) {
	if in.Text == "" && in.ImageURL == "" {
		return models.Comment{}, errs.Validation("comment text is required")
	}
	t, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Comment{}, err
	}
	staff := actor.Role.Staff()
	if !staff && !t.Status.Active() {
		return models.Comment{}, errs.Permission("replies are only accepted while the ticket is being worked on")
	}

	c := models.Comment{
		ID:             uuid.NewString(),
		TicketID:       t.ID,
		UserID:         actor.ID,
		Username:       actor.Name,
		Role:           actor.Role,
		Comment:        in.Text,
		ImageURL:       in.ImageURL,
		ThumbnailURL:   in.ThumbnailURL,
		Timestamp:      e.now(),
		SentToTelegram: !staff,
		ReadByAgent:    staff,
	}
	if err := e.Store.InsertComment(ctx, c); err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	if staff {
		commentID := c.ID
		e.notify(notify.StaffReply(t, c), func(delivered bool) {
			if !delivered {
				return
			}
			markCtx, cancel := context.WithTimeout(context.Background(), markSentTimeout)
			defer cancel()
			if err := e.Store.MarkCommentSent(markCtx, commentID); err != nil {
				e.Logger.Warn().Err(err).Str("comment_id", commentID).Msg("mark comment sent")
			}
		})
	} else {
		e.broadcastReply(t, actor.Name)
	}
	e.publish(kafka.EventCommentAdded, t)
	return c, nil
}

type BotCommentInput struct {
	ReporterID   string
	ReporterName string
	CommentInput
}

// AddBotComment stores a reporter reply relayed by the chat bot. The comment
// is already in the chat, so it is never dispatched back.
func (e *AssignmentEngine) AddBotComment(ctx context.Context, ticketNumber string, in BotCommentInput) (models.Comment, error) {
	if in.Text == "" && in.ImageURL == "" {
		return models.Comment{}, errs.Validation("comment text is required")
	}
	t, err := e.Store.GetTicketByNumber(ctx, ticketNumber)
	if err != nil {
		return models.Comment{}, err
	}
	if t.Status == models.StatusCompleted {
		return models.Comment{}, errs.Conflict("ticket %s is already completed", t.TicketNumber)
	}

	name := in.ReporterName
	if name == "" {
		name = t.ReporterName
	}
	c := models.Comment{
		ID:             uuid.NewString(),
		TicketID:       t.ID,
		UserID:         in.ReporterID,
		Username:       name,
		Role:           models.RoleUser,
		Comment:        in.Text,
		ImageURL:       in.ImageURL,
		ThumbnailURL:   in.ThumbnailURL,
		Timestamp:      e.now(),
		SentToTelegram: true,
	}
	if err := e.Store.InsertComment(ctx, c); err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	e.broadcastReply(t, name)
	e.publish(kafka.EventCommentAdded, t)
	return c, nil
}

// MarkCommentsRead clears the unread badge of a ticket for agents.
func (e *AssignmentEngine) MarkCommentsRead(ctx context.Context, actor Actor, ticketID string) (int64, error) {
	if actor.Role != models.RoleAgent {
		return 0, errs.Permission("only agents can mark replies as read")
	}
	if _, err := e.Store.GetTicket(ctx, ticketID); err != nil {
		return 0, err
	}
	return e.Store.MarkCommentsRead(ctx, ticketID)
}

func (e *AssignmentEngine) broadcastReply(t models.Ticket, userName string) {
	e.broadcast(realtime.Event{Type: realtime.EventNewReply, Data: map[string]string{
		"ticket_id":     t.ID,
		"ticket_number": t.TicketNumber,
		"user_name":     userName,
	}})
}

// conflictFor re-reads a ticket whose conditional update matched nothing
// and explains why.
func (e *AssignmentEngine) conflictFor(ctx context.Context, ticketID, actorID string) error {
	latest, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return fmt.Errorf("reload ticket: %w", err)
	}
	return e.conflictFrom(latest, actorID)
}

func (e *AssignmentEngine) conflictFrom(t models.Ticket, actorID string) error {
	switch {
	case t.Status == models.StatusCompleted:
		return errs.Conflict("ticket %s is already completed", t.TicketNumber)
	case t.AssignedAgent != nil && *t.AssignedAgent != actorID:
		return errs.TakenBy(t.HolderName())
	default:
		return errs.Conflict("ticket %s was modified concurrently, retry", t.TicketNumber)
	}
}
