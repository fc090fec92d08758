package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/internal/registration"
)

const (
	defaultQueueSize      = 128
	defaultPublishTimeout = 5 * time.Second
)

// Emitter turns registration callbacks into events and publishes them from a
// background goroutine, so a slow or absent broker never delays a chat reply.
// Events that do not fit the queue are dropped with a warning.
type Emitter struct {
	pub     Publisher
	queue   chan Event
	timeout time.Duration
	now     func() time.Time

	// mu guards closed; emit holds it shared so Close never closes the
	// queue under a concurrent send.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewEmitter starts the publishing goroutine.
func NewEmitter(pub Publisher, queueSize int) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Emitter{
		pub:     pub,
		queue:   make(chan Event, queueSize),
		timeout: defaultPublishTimeout,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go e.loop()
	return e
}

// Registered implements workflow.Listener.
func (e *Emitter) Registered(ctx context.Context, reg registration.Registration) {
	e.emit(ctx, NewEvent(TypeRegistrationCreated, reg, e.now()))
}

// Redeemed implements moderation.RedeemListener.
func (e *Emitter) Redeemed(ctx context.Context, reg registration.Registration) {
	e.emit(ctx, NewEvent(TypeRegistrationRedeemed, reg, e.now()))
}

func (e *Emitter) emit(ctx context.Context, ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		logger.EVT.LogAttrs(ctx, slog.LevelWarn, "event.dropped",
			slog.String("type", ev.Type),
			slog.String("voucher", ev.VoucherCode),
			slog.String("reason", "closed"),
		)
		return
	}
	select {
	case e.queue <- ev:
	default:
		logger.EVT.LogAttrs(ctx, slog.LevelWarn, "event.dropped",
			slog.String("type", ev.Type),
			slog.String("voucher", ev.VoucherCode),
			slog.String("reason", "queue_full"),
		)
	}
}

func (e *Emitter) loop() {
	defer close(e.done)
	for ev := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			logger.EVT.LogAttrs(ctx, slog.LevelWarn, "event.publish_failed",
				slog.String("type", ev.Type),
				slog.String("voucher", ev.VoucherCode),
				slog.String("err", err.Error()),
			)
			continue
		}
		logger.EVT.LogAttrs(ctx, slog.LevelDebug, "event.published",
			slog.String("type", ev.Type),
			slog.String("id", ev.ID),
		)
	}
}

// Close flushes queued events and closes the publisher. Events emitted after
// Close are dropped.
func (e *Emitter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
		<-e.done
		err = e.pub.Close()
	})
	return err
}
