package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/botsdv/backend/internal/models"
)

const (
	EventTicketCreated    = "ticket.created"
	EventTicketClaimed    = "ticket.claimed"
	EventTicketUnassigned = "ticket.unassigned"
	EventTicketStatus     = "ticket.status_changed"
	EventTicketCompleted  = "ticket.completed"
	EventTicketDeleted    = "ticket.deleted"
	EventCommentAdded     = "comment.added"
)

// Publisher emits ticket lifecycle events. Implementations are best effort
// and never fail the caller.
type Publisher interface {
	Publish(ctx context.Context, event string, t models.Ticket)
}

type ticketEvent struct {
	Event         string              `json:"event"`
	TicketID      string              `json:"ticket_id"`
	TicketNumber  string              `json:"ticket_number"`
	Status        models.TicketStatus `json:"status"`
	Category      string              `json:"category,omitempty"`
	AssignedAgent *string             `json:"assigned_agent"`
	At            time.Time           `json:"at"`
}

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes ticket events to a topic from a single goroutine, so the
// events of one ticket reach the writer, and its partition, in publish
// order. With no brokers or topic every method is a no-op.
type Producer struct {
	writer messageWriter
	queue  chan kafka.Message
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	logger zerolog.Logger
}

func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	logger = logger.With().Str("component", "kafka").Logger()
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}, defaultQueueSize, logger)
}

func newProducer(w messageWriter, size int, logger zerolog.Logger) *Producer {
	p := &Producer{
		writer: w,
		queue:  make(chan kafka.Message, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.run()
	return p
}

func (p *Producer) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Warn().Err(err).Str("ticket_id", string(msg.Key)).Msg("write ticket event")
		}
		cancel()
	}
}

// Publish queues the event without waiting for the broker. A full queue or
// a done ctx drops it.
func (p *Producer) Publish(ctx context.Context, event string, t models.Ticket) {
	if p == nil || p.writer == nil {
		return
	}
	body, err := json.Marshal(ticketEvent{
		Event:         event,
		TicketID:      t.ID,
		TicketNumber:  t.TicketNumber,
		Status:        t.Status,
		Category:      t.Category,
		AssignedAgent: t.AssignedAgent,
		At:            time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("marshal ticket event")
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- kafka.Message{Key: []byte(t.ID), Value: body}:
	default:
		p.logger.Warn().Str("event", event).Str("ticket_id", t.ID).Msg("event queue full, dropping ticket event")
	}
}

// Close flushes queued events and closes the writer. Later publishes are
// dropped.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a list.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
