package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notifier/internal/platform/pg"
	"notifier/internal/shared"
	"notifier/migrations"
)

// Postgres stores the journal in PostgreSQL.
type Postgres struct {
	pool   *pgxpool.Pool
	runner *pg.TxRunner
}

// OpenPostgres migrates the database behind dsn and connects a pool to it.
func OpenPostgres(ctx context.Context, dsn string, pc pg.PoolConfig) (*Postgres, error) {
	if _, err := pg.ApplyMigrations(dsn, migrations.FS, migrations.PostgresDir); err != nil {
		return nil, shared.Wrap(err, "migrate journal")
	}
	pool, err := pg.NewPool(ctx, dsn, pc)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("connect journal: %w", err), shared.KindDependencyFailure)
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps a pool connected to an already migrated database.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, runner: pg.NewTxRunner(pool)}
}

const pgUpsertDelivery = `
INSERT INTO deliveries (id, channel, recipient, strategy, outcome, max_attempts, attempts, waited_ns, last_error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    outcome = EXCLUDED.outcome,
    attempts = EXCLUDED.attempts,
    waited_ns = EXCLUDED.waited_ns,
    last_error = EXCLUDED.last_error,
    finished_at = EXCLUDED.finished_at`

// RecordDelivery implements Store.
func (s *Postgres) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := s.pool.Exec(ctx, pgUpsertDelivery,
		d.ID, d.Channel, d.Recipient, d.Strategy, d.Outcome, d.MaxAttempts, d.Attempts,
		int64(d.Waited), d.LastError, d.StartedAt, nullTime(d.FinishedAt))
	if err != nil {
		return shared.MarkKind(fmt.Errorf("record delivery %s: %w", d.ID, err), shared.KindDependencyFailure)
	}
	return nil
}

// RecordAttempt implements Store.
func (s *Postgres) RecordAttempt(ctx context.Context, a Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delivery_attempts (delivery_id, number, error, at) VALUES ($1, $2, $3, $4)`,
		a.DeliveryID, a.Number, a.Error, a.At)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("record attempt %s/%d: %w", a.DeliveryID, a.Number, err), shared.KindDependencyFailure)
	}
	return nil
}

const pgSelectDelivery = `
SELECT id, channel, recipient, strategy, outcome, max_attempts, attempts, waited_ns, last_error, started_at, finished_at
FROM deliveries`

// Get implements Store.
func (s *Postgres) Get(ctx context.Context, id string) (Delivery, error) {
	var d Delivery
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		q := s.runner.Querier(ctx)
		var err error
		d, err = scanPgDelivery(q.QueryRow(ctx, pgSelectDelivery+` WHERE id = $1`, id))
		if err != nil {
			return err
		}

		rows, err := q.Query(ctx,
			`SELECT number, error, at FROM delivery_attempts WHERE delivery_id = $1 ORDER BY number`, id)
		if err != nil {
			return err
		}
		d.AttemptLog, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Attempt, error) {
			a := Attempt{DeliveryID: id}
			err := row.Scan(&a.Number, &a.Error, &a.At)
			a.At = a.At.UTC()
			return a, err
		})
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, notFound(id)
	}
	if err != nil {
		return Delivery{}, shared.MarkKind(fmt.Errorf("get delivery %s: %w", id, err), shared.KindDependencyFailure)
	}
	return d, nil
}

// List implements Store. Newest first.
func (s *Postgres) List(ctx context.Context, limit int) ([]Delivery, error) {
	query := pgSelectDelivery + ` ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("list deliveries: %w", err), shared.KindDependencyFailure)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Delivery, error) {
		return scanPgDelivery(row)
	})
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("scan delivery: %w", err), shared.KindDependencyFailure)
	}
	return out, nil
}

// Prune implements Store. Attempts go with their delivery via ON DELETE CASCADE.
func (s *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE started_at < $1`, before)
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("prune journal: %w", err), shared.KindDependencyFailure)
	}
	return tag.RowsAffected(), nil
}

// Close implements Store.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func scanPgDelivery(r pgx.Row) (Delivery, error) {
	var (
		d        Delivery
		waited   int64
		finished *time.Time
	)
	if err := r.Scan(&d.ID, &d.Channel, &d.Recipient, &d.Strategy, &d.Outcome, &d.MaxAttempts,
		&d.Attempts, &waited, &d.LastError, &d.StartedAt, &finished); err != nil {
		return Delivery{}, err
	}
	d.Waited = time.Duration(waited)
	d.StartedAt = d.StartedAt.UTC()
	if finished != nil {
		d.FinishedAt = finished.UTC()
	}
	return d, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
