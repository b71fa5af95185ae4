package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"notifier/pkg/retry"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// ErrNestedTx возвращается при попытке открыть транзакцию внутри транзакции.
var ErrNestedTx = errors.New("sqlite: nested transactions are not supported")

// Querier объединяет методы выполнения запросов, общие для БД и транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// TxRunner выполняет функции внутри транзакции и повторяет их,
// если SQLite вернул SQLITE_BUSY.
type TxRunner struct {
	DB *sql.DB
	// BusyPolicy - политика повторов при SQLITE_BUSY
	BusyPolicy retry.Policy
	// BusyRetries - сколько раз повторять транзакцию
	BusyRetries int
}

// NewTxRunner создаёт TxRunner с экспоненциальной паузой 10ms, 20ms, 40ms
// (не больше 500ms) и тремя повторами.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{
		DB:          db,
		BusyPolicy:  retry.Exponential{Unit: 10 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		BusyRetries: 3,
	}
}

// WithinTx выполняет fn внутри транзакции: ошибка fn откатывает её,
// успех коммитит. Внутри fn транзакция доступна через Querier(ctx).
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return ErrNestedTx
	}

	cfg := retry.Config{
		MaxAttempts: r.BusyRetries,
		Halt:        func(err error) bool { return !IsBusy(err) },
	}
	res, err := retry.Run(ctx, r.BusyPolicy, cfg, func(ctx context.Context, _ int) error {
		return r.executeTx(ctx, fn)
	})
	if err != nil {
		return err
	}
	return res.LastErr
}

// Querier возвращает активную транзакцию из контекста или основное подключение.
func (r *TxRunner) Querier(ctx context.Context) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return r.DB
}

// TxFrom извлекает активную транзакцию из контекста.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// executeTx выполняет одну попытку транзакции.
func (r *TxRunner) executeTx(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsBusy проверяет, является ли ошибка SQLITE_BUSY или SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
