package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/platform/pg"
	"notifier/internal/shared"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	stores := map[string]Store{"memory": NewMemory()}

	lite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	stores["sqlite"] = lite

	if dsn := os.Getenv("TEST_PG_DSN"); dsn != "" {
		pgs, err := OpenPostgres(ctx, dsn, pg.PoolConfig{MaxConns: 4})
		require.NoError(t, err)
		stores["postgres"] = pgs
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func newDelivery(started time.Time) Delivery {
	return Delivery{
		ID:          uuid.NewString(),
		Channel:     "email",
		Recipient:   "user@example.com",
		Strategy:    "exponential",
		Outcome:     OutcomePending,
		MaxAttempts: 3,
		StartedAt:   started.UTC().Truncate(time.Microsecond),
	}
}

func TestStoreRecordAndGet(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			d := newDelivery(now)
			require.NoError(t, store.RecordDelivery(ctx, d))

			for i := range 2 {
				require.NoError(t, store.RecordAttempt(ctx, Attempt{
					DeliveryID: d.ID,
					Number:     i,
					Error:      "smtp: 451",
					At:         now.Add(time.Duration(i) * time.Second).UTC().Truncate(time.Microsecond),
				}))
			}
			require.NoError(t, store.RecordAttempt(ctx, Attempt{DeliveryID: d.ID, Number: 2, At: now.UTC().Truncate(time.Microsecond)}))

			d.Outcome = "success"
			d.Attempts = 3
			d.Waited = 3 * time.Second
			d.FinishedAt = now.Add(3 * time.Second).UTC().Truncate(time.Microsecond)
			require.NoError(t, store.RecordDelivery(ctx, d))

			got, err := store.Get(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, "success", got.Outcome)
			assert.Equal(t, 3, got.Attempts)
			assert.Equal(t, 3*time.Second, got.Waited)
			assert.True(t, d.StartedAt.Equal(got.StartedAt))
			assert.True(t, d.FinishedAt.Equal(got.FinishedAt))
			require.Len(t, got.AttemptLog, 3)
			assert.Equal(t, "smtp: 451", got.AttemptLog[0].Error)
			assert.Empty(t, got.AttemptLog[2].Error)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), uuid.NewString())
			require.Error(t, err)
			assert.True(t, shared.IsNotFound(err))
		})
	}
}

func TestStorePendingHasNoFinishTime(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := newDelivery(time.Now())
			require.NoError(t, store.RecordDelivery(ctx, d))

			got, err := store.Get(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, OutcomePending, got.Outcome)
			assert.True(t, got.FinishedAt.IsZero())
			assert.Empty(t, got.AttemptLog)

			data, err := json.Marshal(got)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "finished_at")
		})
	}
}

func TestStoreUpsertKeepsStartTime(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			queued := newDelivery(time.Now())
			require.NoError(t, store.RecordDelivery(ctx, queued))

			again := queued
			again.StartedAt = queued.StartedAt.Add(time.Minute)
			require.NoError(t, store.RecordDelivery(ctx, again))

			got, err := store.Get(ctx, queued.ID)
			require.NoError(t, err)
			assert.True(t, queued.StartedAt.Equal(got.StartedAt))
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Far future so rows left by other tests in a shared database sort after these.
			base := time.Now().Add(24 * 365 * time.Hour)
			var ids []string
			for i := range 3 {
				d := newDelivery(base.Add(time.Duration(i) * time.Minute))
				require.NoError(t, store.RecordDelivery(ctx, d))
				ids = append(ids, d.ID)
			}

			got, err := store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, ids[2], got[0].ID)
			assert.Equal(t, ids[1], got[1].ID)
		})
	}
}

func TestStorePrune(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cutoff := time.Now().Add(-100 * 24 * 365 * time.Hour)

			old := newDelivery(cutoff.Add(-time.Hour))
			fresh := newDelivery(cutoff.Add(time.Hour))
			require.NoError(t, store.RecordDelivery(ctx, old))
			require.NoError(t, store.RecordDelivery(ctx, fresh))
			require.NoError(t, store.RecordAttempt(ctx, Attempt{DeliveryID: old.ID, Number: 0, At: old.StartedAt}))

			n, err := store.Prune(ctx, cutoff)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			_, err = store.Get(ctx, old.ID)
			assert.True(t, shared.IsNotFound(err))
			_, err = store.Get(ctx, fresh.ID)
			assert.NoError(t, err)
		})
	}
}

func TestMemoryRejectsOrphanAttempt(t *testing.T) {
	err := NewMemory().RecordAttempt(context.Background(), Attempt{DeliveryID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}
