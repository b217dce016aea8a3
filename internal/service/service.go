package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/kafka"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/notify"
	"github.com/botsdv/backend/internal/realtime"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Name string
	Role models.Role
}

func ActorFrom(u models.User) Actor {
	return Actor{ID: u.ID, Name: u.DisplayName(), Role: u.Role}
}

type Notifier interface {
	Enqueue(msg notify.Message, onDone func(delivered bool))
}

type Broadcaster interface {
	Broadcast(ctx context.Context, ev realtime.Event) int
	SendTo(ctx context.Context, recipientID string, ev realtime.Event) bool
}

type Invalidator interface {
	Invalidate(ctx context.Context, agentIDs ...string)
}

const (
	markSentTimeout = 5 * time.Second
	realtimeTimeout = 5 * time.Second
)

// Effects bundles the post-commit hooks shared by the ticket services.
// Every hook is optional and none of them can fail the caller.
type Effects struct {
	Notifier Notifier
	Realtime Broadcaster
	Cache    Invalidator
	Events   kafka.Publisher
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s Effects) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Effects) invalidate(ctx context.Context, agentIDs ...string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, agentIDs...)
	}
}

func (s Effects) notify(msg notify.Message, onDone func(bool)) {
	if s.Notifier == nil {
		return
	}
	if msg.ChatID == "" {
		s.Logger.Warn().Msg("no chat id for notification, skipping")
		return
	}
	s.Notifier.Enqueue(msg, onDone)
}

// broadcast fans ev out on its own goroutine; slow sessions never hold up
// the request that produced the event.
func (s Effects) broadcast(ev realtime.Event) {
	if s.Realtime == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), realtimeTimeout)
		defer cancel()
		n := s.Realtime.Broadcast(ctx, ev)
		s.Logger.Debug().Str("event", ev.Type).Int("sessions", n).Msg("realtime event sent")
	}()
}

func (s Effects) sendTo(recipientID string, ev realtime.Event) {
	if s.Realtime == nil || recipientID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), realtimeTimeout)
		defer cancel()
		ok := s.Realtime.SendTo(ctx, recipientID, ev)
		s.Logger.Debug().Str("event", ev.Type).Str("recipient", recipientID).Bool("delivered", ok).Msg("realtime event sent")
	}()
}

// publish hands the event to the producer queue, which never blocks.
func (s Effects) publish(event string, t models.Ticket) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(context.Background(), event, t)
}

func stringPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
