package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Stats counts finished jobs. Blocked jobs are failures whose recipient
// blocked the bot; they are not included in Failed.
type Stats struct {
	Sent    uint64
	Retried uint64
	Failed  uint64
	Blocked uint64
}

type job struct {
	ctx       context.Context
	action    string
	endpoint  string
	recipient int64
	run       func() error
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if j.recipient != 0 {
		attrs = append(attrs, slog.Int64("recipient", j.recipient))
	}
	if rid := logger.RIDFrom(j.ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if updateID := logger.UpdateIDFrom(j.ctx); updateID != 0 {
		attrs = append(attrs, slog.Int("update_id", updateID))
	}
	if chatID := logger.ChatIDFrom(j.ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	if userID := logger.UserIDFrom(j.ctx); userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	return attrs
}

// Dispatcher runs outbound Telegram calls on a worker pool so a slow or
// failing recipient never blocks update handling.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	sent, retried, failed, blocked atomic.Uint64
}

// NewDispatcher starts the workers; zero options get defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.worker()
	}
	return d
}

// Enqueue schedules run for asynchronous execution. run may be called more
// than once, so it must be safe to retry.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	return d.enqueue(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// EnqueueTo schedules a send addressed to a single chat. Each recipient is an
// independent job: a failure or retry for one never delays or cancels another.
func (d *Dispatcher) EnqueueTo(ctx context.Context, action string, recipient int64, run func() error) error {
	return d.enqueue(job{ctx: ctx, action: action, endpoint: "sendMessage", recipient: recipient, run: run})
}

func (d *Dispatcher) enqueue(j job) error {
	if j.run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if j.ctx == nil {
		j.ctx = context.Background()
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the counters accumulated so far.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Retried: d.retried.Load(),
		Failed:  d.failed.Load(),
		Blocked: d.blocked.Load(),
	}
}

// Close stops accepting jobs and waits until the queued ones finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

// backoff grows linearly with the attempt; flood control overrides it with
// the wait Telegram asked for.
func (d *Dispatcher) backoff(attempt int, err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}

func (d *Dispatcher) handleJob(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	logger.Debug(j.ctx, component, "send.start", j.attrs()...)

	var (
		err   error
		tried int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		tried = attempt
		if err = j.run(); err == nil {
			d.sent.Add(1)
			if attempt > 1 {
				d.retried.Add(1)
			}
			logger.Debug(j.ctx, component, "send.success", append(j.attrs(),
				slog.Int("attempt", attempt),
				slog.Int64("elapsed_ms", logger.SinceMS(start)),
			)...)
			return
		}
		if attempt == attempts || recipientGone(err) || !netutil.ShouldRetry(err) {
			break
		}

		delay := d.backoff(attempt, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = errors.Join(err, ctx.Err())
			d.fail(j, err, attempt, start)
			return
		case <-timer.C:
		}
		logger.Debug(j.ctx, component, "send.retry.backoff", append(j.attrs(),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)...)
	}
	d.fail(j, err, tried, start)
}

func (d *Dispatcher) fail(j job, err error, attempts int, start time.Time) {
	kind := classifyError(err)
	attrs := append(j.attrs(),
		slog.String("error", sanitizeErrorMessage(err)),
		slog.String("error_kind", kind),
		slog.Int("attempts", attempts),
		slog.Int64("elapsed_ms", logger.SinceMS(start)),
	)
	if kind == kindBlocked {
		d.blocked.Add(1)
		logger.Warn(j.ctx, component, "send.blocked", attrs...)
		return
	}
	d.failed.Add(1)
	logger.Error(j.ctx, component, "send.fail", attrs...)
}
