// Package dispatcher drives channel sends through their retry policies and
// journals every attempt.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notifier/internal/channel"
	"notifier/internal/shared"
	"notifier/internal/storage/journal"
	"notifier/pkg/retry"
)

// DefaultMaxAttempts is the attempt limit used by Send.
const DefaultMaxAttempts = 3

// ErrNilChannel is returned when a dispatch has no channel.
var ErrNilChannel = errors.New("dispatcher: nil channel")

// Report is the result of one dispatch.
type Report struct {
	retry.Result
	ID       string
	Channel  channel.Kind
	Strategy retry.Strategy
}

// Dispatcher runs the retry loop for a channel and message.
type Dispatcher struct {
	log         *slog.Logger
	journal     journal.Store
	after       func(time.Duration) <-chan time.Time
	maxAttempts int
	newID       func() string
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithJournal records dispatches in s.
func WithJournal(s journal.Store) Option {
	return func(d *Dispatcher) { d.journal = s }
}

// WithAfter replaces the timer used between attempts.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(d *Dispatcher) { d.after = after }
}

// WithDefaultMaxAttempts changes the limit used by Send.
func WithDefaultMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxAttempts = n
		}
	}
}

// WithIDGenerator replaces the UUID generator for message IDs.
func WithIDGenerator(f func() string) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.newID = f
		}
	}
}

// WithClock sets the time source for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:         slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultMaxAttempts returns the limit Send uses.
func (d *Dispatcher) DefaultMaxAttempts() int { return d.maxAttempts }

// Send dispatches msg with the default attempt limit and reports delivery.
func (d *Dispatcher) Send(ctx context.Context, ch channel.Channel, msg channel.Message) bool {
	rep, err := d.SendWithRetry(ctx, ch, msg, d.maxAttempts)
	return err == nil && rep.Delivered()
}

// SendWithRetry sends msg over ch, retrying failed attempts as the channel's
// policy allows, up to maxAttempts retries.
//
// Send failures are reported through the Report, not the error. The error is
// non-nil for invalid arguments or a cancelled context.
func (d *Dispatcher) SendWithRetry(ctx context.Context, ch channel.Channel, msg channel.Message, maxAttempts int) (Report, error) {
	if ch == nil {
		return Report{}, shared.MarkKind(ErrNilChannel, shared.KindValidation)
	}
	if maxAttempts < 0 {
		return Report{}, shared.MarkKind(
			fmt.Errorf("%w: got %d", retry.ErrInvalidMaxAttempts, maxAttempts), shared.KindValidation)
	}
	if msg.ID == "" {
		msg.ID = d.newID()
	}

	policy := ch.Policy()
	rep := Report{ID: msg.ID, Channel: ch.Kind(), Strategy: policy.Strategy()}
	log := d.log.With(
		slog.String("id", msg.ID),
		slog.String("channel", rep.Channel.String()),
		slog.String("recipient", msg.Recipient),
	)

	// Journal writes outlive the dispatch context so a cancelled run is
	// still recorded.
	jctx := context.WithoutCancel(ctx)
	entry := d.pendingEntry(ch, msg, maxAttempts)
	d.record(jctx, log, entry)

	cfg := retry.Config{
		MaxAttempts: maxAttempts,
		After:       d.after,
		OnAttempt: func(attempt int, err error) {
			d.recordAttempt(jctx, log, msg.ID, attempt, err)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("strategy", rep.Strategy.String()),
				slog.Any("error", err),
			)
		},
	}

	res, err := retry.Run(ctx, policy, cfg, func(ctx context.Context, attempt int) error {
		log.Debug("sending", slog.Int("attempt", attempt), slog.String("text", msg.Text))
		return ch.Send(ctx, msg)
	})
	rep.Result = res

	entry.Outcome = res.Outcome.String()
	entry.Attempts = res.Attempts
	entry.Waited = res.Waited
	entry.FinishedAt = d.now()
	if res.LastErr != nil {
		entry.LastError = res.LastErr.Error()
	}
	d.record(jctx, log, entry)

	attrs := []any{
		slog.String("outcome", res.Outcome.String()),
		slog.Int("attempts", res.Attempts),
		slog.Duration("waited", res.Waited),
	}
	switch res.Outcome {
	case retry.OutcomeSuccess:
		log.Info("delivered", attrs...)
	case retry.OutcomeCancelled:
		log.Warn("cancelled", append(attrs, slog.Any("error", err))...)
	default:
		log.Error("failed", append(attrs, slog.Any("error", res.LastErr))...)
	}
	return rep, err
}

func (d *Dispatcher) pendingEntry(ch channel.Channel, msg channel.Message, maxAttempts int) journal.Delivery {
	return journal.Delivery{
		ID:          msg.ID,
		Channel:     ch.Kind().String(),
		Recipient:   msg.Recipient,
		Strategy:    ch.Policy().Strategy().String(),
		Outcome:     journal.OutcomePending,
		MaxAttempts: maxAttempts,
		StartedAt:   d.now(),
	}
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, entry journal.Delivery) {
	if d.journal == nil {
		return
	}
	if err := d.journal.RecordDelivery(ctx, entry); err != nil {
		log.Error("journal delivery", slog.Any("error", err))
	}
}

func (d *Dispatcher) recordAttempt(ctx context.Context, log *slog.Logger, id string, attempt int, sendErr error) {
	if d.journal == nil {
		return
	}
	a := journal.Attempt{DeliveryID: id, Number: attempt, At: d.now()}
	if sendErr != nil {
		a.Error = sendErr.Error()
	}
	if err := d.journal.RecordAttempt(ctx, a); err != nil {
		log.Error("journal attempt", slog.Int("attempt", attempt), slog.Any("error", err))
	}
}
