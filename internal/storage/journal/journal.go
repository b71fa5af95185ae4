// Package journal records what the dispatcher did: one row per dispatch and
// one per attempt. It is an audit log; nothing reads it back to resume a
// retry.
package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"notifier/internal/shared"
)

// OutcomePending marks a delivery whose retry loop is still running.
const OutcomePending = "pending"

// Delivery is the journal entry of one dispatch.
type Delivery struct {
	ID          string        `json:"id"`
	Channel     string        `json:"channel"`
	Recipient   string        `json:"recipient"`
	Strategy    string        `json:"strategy"`
	Outcome     string        `json:"outcome"`
	MaxAttempts int           `json:"max_attempts"`
	Attempts    int           `json:"attempts"`
	Waited      time.Duration `json:"waited_ns"`
	LastError   string        `json:"last_error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	// AttemptLog is filled by Get only.
	AttemptLog []Attempt `json:"attempt_log,omitempty"`
}

// Attempt is the journal entry of one send call.
type Attempt struct {
	DeliveryID string    `json:"-"`
	Number     int       `json:"number"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Store persists journal entries. RecordDelivery inserts the entry or
// updates the one with the same ID, keeping its original StartedAt.
type Store interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	RecordAttempt(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Delivery, error)
	List(ctx context.Context, limit int) ([]Delivery, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)

func notFound(id string) error {
	return shared.Wrapf(shared.ErrNotFound, "delivery %s", id)
}

// Memory is an in-process Store.
type Memory struct {
	mu         sync.RWMutex
	deliveries map[string]Delivery
	attempts   map[string][]Attempt
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		deliveries: make(map[string]Delivery),
		attempts:   make(map[string][]Attempt),
	}
}

// RecordDelivery implements Store.
func (m *Memory) RecordDelivery(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.AttemptLog = nil
	if prev, ok := m.deliveries[d.ID]; ok {
		d.StartedAt = prev.StartedAt
	}
	m.deliveries[d.ID] = d
	return nil
}

// RecordAttempt implements Store.
func (m *Memory) RecordAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[a.DeliveryID]; !ok {
		return notFound(a.DeliveryID)
	}
	m.attempts[a.DeliveryID] = append(m.attempts[a.DeliveryID], a)
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, notFound(id)
	}
	d.AttemptLog = append([]Attempt(nil), m.attempts[id]...)
	return d, nil
}

// List implements Store. Newest first.
func (m *Memory) List(_ context.Context, limit int) ([]Delivery, error) {
	m.mu.RLock()
	out := make([]Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		out = append(out, d)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune implements Store.
func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.deliveries {
		if d.StartedAt.Before(before) {
			delete(m.deliveries, id)
			delete(m.attempts, id)
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
