package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type job struct {
	msg    Message
	onDone func(delivered bool)
}

// Dispatcher runs sends on a fixed set of workers fed by a buffered queue.
// When the queue is full the send runs on its own goroutine instead, so
// Enqueue never blocks the caller.
type Dispatcher struct {
	channel Channel
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(ch Channel, workers, queueSize int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{
		channel: ch,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		queue:   make(chan job, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules msg for delivery. onDone, when set, runs after the final
// attempt with the delivery result.
func (d *Dispatcher) Enqueue(msg Message, onDone func(delivered bool)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("chat_id", msg.ChatID).Msg("dispatcher closed, dropping notification")
		return
	}
	j := job{msg: msg, onDone: onDone}
	select {
	case d.queue <- j:
	default:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(j)
		}()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("notification delivery panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	delivered := d.channel.Send(ctx, j.msg)
	if j.onDone != nil {
		j.onDone(delivered)
	}
}

// Close stops accepting work and waits for queued sends until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
