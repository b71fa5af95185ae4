package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"notifier/internal/channel"
	"notifier/internal/shared"
	"notifier/pkg/retry"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("dispatcher: pool closed")

// DefaultQueueSize bounds the jobs a Pool holds when none is given.
const DefaultQueueSize = 1024

// Job is one dispatch queued on a Pool.
type Job struct {
	Channel     channel.Channel
	Message     channel.Message
	MaxAttempts int
	// Done is called from the lane goroutine once the dispatch ends.
	Done func(Report, error)
}

// lane holds the pending jobs of one recipient.
type lane struct {
	queue []Job
}

// Pool runs dispatches in the background. Jobs for the same recipient run
// one after another in submission order; each recipient has its own
// goroutine, so one recipient's backoff never delays another's.
type Pool struct {
	d   *Dispatcher
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool holding at most queueSize unfinished jobs.
func NewPool(d *Dispatcher, queueSize int) *Pool {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		d:      d,
		log:    d.log,
		ctx:    ctx,
		cancel: cancel,
		slots:  make(chan struct{}, queueSize),
		lanes:  make(map[string]*lane),
	}
}

// Submit queues job and returns its message ID, assigning one when empty.
// The job is journaled as pending before Submit returns. It blocks while the
// pool is full, until ctx ends.
func (p *Pool) Submit(ctx context.Context, job Job) (string, error) {
	if job.Channel == nil {
		return "", shared.MarkKind(ErrNilChannel, shared.KindValidation)
	}
	if job.MaxAttempts < 0 {
		return "", shared.MarkKind(
			fmt.Errorf("%w: got %d", retry.ErrInvalidMaxAttempts, job.MaxAttempts), shared.KindValidation)
	}
	if job.Message.ID == "" {
		job.Message.ID = p.d.newID()
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.ctx.Done():
		return "", ErrPoolClosed
	}

	// The pending entry is written before the job reaches its lane so the
	// ID can be looked up while it waits, and the lane's own writes always
	// land after it.
	jctx := context.WithoutCancel(ctx)
	log := p.log.With(slog.String("id", job.Message.ID))
	entry := p.d.pendingEntry(job.Channel, job.Message, job.MaxAttempts)
	p.d.record(jctx, log, entry)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		entry.Outcome = retry.OutcomeCancelled.String()
		entry.LastError = ErrPoolClosed.Error()
		entry.FinishedAt = p.d.now()
		p.d.record(jctx, log, entry)
		return "", ErrPoolClosed
	}
	key := job.Message.Recipient
	l, ok := p.lanes[key]
	if !ok {
		l = &lane{}
		p.lanes[key] = l
		p.wg.Add(1)
		go p.run(key, l)
	}
	l.queue = append(l.queue, job)
	p.mu.Unlock()

	return job.Message.ID, nil
}

// Pending returns the number of queued or running jobs.
func (p *Pool) Pending() int { return len(p.slots) }

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, running dispatches are cancelled and Close returns ctx.Err().
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer p.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(key string, l *lane) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(l.queue) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		job := l.queue[0]
		l.queue = l.queue[1:]
		p.mu.Unlock()

		rep, err := p.d.SendWithRetry(p.ctx, job.Channel, job.Message, job.MaxAttempts)
		<-p.slots
		if err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error("dispatch", slog.String("id", job.Message.ID), slog.Any("error", err))
		}
		if job.Done != nil {
			job.Done(rep, err)
		}
	}
}
