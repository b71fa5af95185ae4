package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/channel"
	"notifier/internal/storage/journal"
	"notifier/pkg/retry"
)

type orderedTransport struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (o *orderedTransport) Deliver(_ context.Context, m channel.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[m.Recipient] = append(o.seen[m.Recipient], m.Text)
	return nil
}

func TestPoolKeepsRecipientOrder(t *testing.T) {
	tr := &orderedTransport{seen: map[string][]string{}}
	p := NewPool(newTestDispatcher(&delayRecorder{}), 16)
	push := channel.NewPush(tr)

	texts := []string{"1", "2", "3", "4", "5"}
	for _, r := range []string{"alice", "bob"} {
		for _, txt := range texts {
			_, err := p.Submit(context.Background(), Job{Channel: push, Message: channel.Message{Recipient: r, Text: txt}})
			require.NoError(t, err)
		}
	}
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, texts, tr.seen["alice"])
	assert.Equal(t, texts, tr.seen["bob"])
	assert.Zero(t, p.Pending())
}

func TestPoolWaitDoesNotBlockOtherRecipients(t *testing.T) {
	release := make(chan time.Time)
	d := New(
		WithLogger(quietLogger()),
		WithAfter(func(time.Duration) <-chan time.Time { return release }),
	)
	p := NewPool(d, 8)

	slow := channel.NewEmail(newScript(false, true))
	_, err := p.Submit(context.Background(), Job{Channel: slow, Message: channel.Message{Recipient: "slow"}, MaxAttempts: 3})
	require.NoError(t, err)

	done := make(chan Report, 1)
	fast := channel.NewPush(newScript(true))
	_, err = p.Submit(context.Background(), Job{
		Channel: fast,
		Message: channel.Message{Recipient: "fast"},
		Done:    func(r Report, _ error) { done <- r },
	})
	require.NoError(t, err)

	select {
	case r := <-done:
		assert.True(t, r.Delivered())
	case <-time.After(5 * time.Second):
		t.Fatal("fast recipient blocked behind a waiting dispatch")
	}

	close(release)
	require.NoError(t, p.Close(context.Background()))
}

func TestPoolJournalsQueuedJob(t *testing.T) {
	store := journal.NewMemory()
	p := NewPool(newTestDispatcher(&delayRecorder{}, WithJournal(store)), 4)

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := channel.NewPush(channel.TransportFunc(func(context.Context, channel.Message) error {
		close(started)
		<-release
		return nil
	}))

	_, err := p.Submit(context.Background(), Job{Channel: blocking, Message: channel.Message{ID: "first", Recipient: "alice"}})
	require.NoError(t, err)
	<-started

	id, err := p.Submit(context.Background(), Job{
		Channel:     channel.NewEmail(newScript(true)),
		Message:     channel.Message{ID: "second", Recipient: "alice"},
		MaxAttempts: 2,
	})
	require.NoError(t, err)
	require.Equal(t, "second", id)

	queued, err := store.Get(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, journal.OutcomePending, queued.Outcome)
	assert.Equal(t, "email", queued.Channel)
	assert.Equal(t, 2, queued.MaxAttempts)
	assert.Zero(t, queued.Attempts)

	close(release)
	require.NoError(t, p.Close(context.Background()))

	final, err := store.Get(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, retry.OutcomeSuccess.String(), final.Outcome)
	assert.Equal(t, 1, final.Attempts)
}

func TestPoolSubmitAssignsID(t *testing.T) {
	d := newTestDispatcher(&delayRecorder{}, WithIDGenerator(func() string { return "generated" }))
	p := NewPool(d, 1)
	defer p.Close(context.Background())

	id, err := p.Submit(context.Background(), Job{Channel: channel.NewPush(newScript(true))})
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
}

func TestPoolSubmitValidates(t *testing.T) {
	p := NewPool(newTestDispatcher(&delayRecorder{}), 1)
	defer p.Close(context.Background())

	_, err := p.Submit(context.Background(), Job{})
	assert.ErrorIs(t, err, ErrNilChannel)

	_, err = p.Submit(context.Background(), Job{Channel: channel.NewPush(newScript(true)), MaxAttempts: -2})
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(newTestDispatcher(&delayRecorder{}), 1)
	require.NoError(t, p.Close(context.Background()))

	_, err := p.Submit(context.Background(), Job{Channel: channel.NewPush(newScript(true))})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolCloseDeadlineCancelsRunning(t *testing.T) {
	never := make(chan time.Time)
	d := New(WithLogger(quietLogger()), WithAfter(func(time.Duration) <-chan time.Time { return never }))
	p := NewPool(d, 1)

	done := make(chan Report, 1)
	_, err := p.Submit(context.Background(), Job{
		Channel:     channel.NewEmail(newScript(false)),
		MaxAttempts: 3,
		Done:        func(r Report, _ error) { done <- r },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, retry.OutcomeCancelled, (<-done).Outcome)
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	never := make(chan time.Time)
	d := New(WithLogger(quietLogger()), WithAfter(func(time.Duration) <-chan time.Time { return never }))
	p := NewPool(d, 1)

	_, err := p.Submit(context.Background(), Job{Channel: channel.NewEmail(newScript(false)), MaxAttempts: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Submit(ctx, Job{Channel: channel.NewPush(newScript(true)), Message: channel.Message{Recipient: "other"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer closeCancel()
	_ = p.Close(closeCtx)
}
