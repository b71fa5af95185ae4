package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notifier/internal/platform/sqlite"
	"notifier/internal/shared"
	"notifier/migrations"
)

// SQLite stores the journal in a SQLite file.
type SQLite struct {
	db     *sql.DB
	runner *sqlite.TxRunner
}

// OpenSQLite opens the journal database at path, creating and migrating
// it as needed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, shared.Wrap(err, "open journal")
	}
	if err := sqlite.ApplyMigrations(path, migrations.FS, migrations.SQLiteDir); err != nil {
		_ = db.Close()
		return nil, shared.Wrap(err, "migrate journal")
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, runner: sqlite.NewTxRunner(db)}
}

const sqliteUpsertDelivery = `
INSERT INTO deliveries (id, channel, recipient, strategy, outcome, max_attempts, attempts, waited_ns, last_error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    outcome = excluded.outcome,
    attempts = excluded.attempts,
    waited_ns = excluded.waited_ns,
    last_error = excluded.last_error,
    finished_at = excluded.finished_at`

// RecordDelivery implements Store.
func (s *SQLite) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertDelivery,
		d.ID, d.Channel, d.Recipient, d.Strategy, d.Outcome, d.MaxAttempts, d.Attempts,
		int64(d.Waited), d.LastError, d.StartedAt.UnixNano(), nullUnix(d.FinishedAt))
	if err != nil {
		return shared.MarkKind(fmt.Errorf("record delivery %s: %w", d.ID, err), shared.KindDependencyFailure)
	}
	return nil
}

// RecordAttempt implements Store.
func (s *SQLite) RecordAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (delivery_id, number, error, at) VALUES (?, ?, ?, ?)`,
		a.DeliveryID, a.Number, a.Error, a.At.UnixNano())
	if err != nil {
		return shared.MarkKind(fmt.Errorf("record attempt %s/%d: %w", a.DeliveryID, a.Number, err), shared.KindDependencyFailure)
	}
	return nil
}

const sqliteSelectDelivery = `
SELECT id, channel, recipient, strategy, outcome, max_attempts, attempts, waited_ns, last_error, started_at, finished_at
FROM deliveries`

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, id string) (Delivery, error) {
	var d Delivery
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		q := s.runner.Querier(ctx)
		var err error
		d, err = scanSQLiteDelivery(q.QueryRowContext(ctx, sqliteSelectDelivery+` WHERE id = ?`, id))
		if err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx,
			`SELECT number, error, at FROM delivery_attempts WHERE delivery_id = ? ORDER BY number`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a := Attempt{DeliveryID: id}
			var at int64
			if err := rows.Scan(&a.Number, &a.Error, &at); err != nil {
				return err
			}
			a.At = time.Unix(0, at).UTC()
			d.AttemptLog = append(d.AttemptLog, a)
		}
		return rows.Err()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, notFound(id)
	}
	if err != nil {
		return Delivery{}, shared.MarkKind(fmt.Errorf("get delivery %s: %w", id, err), shared.KindDependencyFailure)
	}
	return d, nil
}

// List implements Store. Newest first.
func (s *SQLite) List(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectDelivery+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("list deliveries: %w", err), shared.KindDependencyFailure)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanSQLiteDelivery(rows)
		if err != nil {
			return nil, shared.MarkKind(fmt.Errorf("scan delivery: %w", err), shared.KindDependencyFailure)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune implements Store.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		q := s.runner.Querier(ctx)
		cutoff := before.UnixNano()
		if _, err := q.ExecContext(ctx,
			`DELETE FROM delivery_attempts WHERE delivery_id IN (SELECT id FROM deliveries WHERE started_at < ?)`, cutoff); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, `DELETE FROM deliveries WHERE started_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("prune journal: %w", err), shared.KindDependencyFailure)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDelivery(r rowScanner) (Delivery, error) {
	var (
		d               Delivery
		waited, started int64
		finished        sql.NullInt64
	)
	if err := r.Scan(&d.ID, &d.Channel, &d.Recipient, &d.Strategy, &d.Outcome, &d.MaxAttempts,
		&d.Attempts, &waited, &d.LastError, &started, &finished); err != nil {
		return Delivery{}, err
	}
	d.Waited = time.Duration(waited)
	d.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		d.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	return d, nil
}

func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
