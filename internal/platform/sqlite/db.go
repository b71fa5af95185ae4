package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// MemoryPath - путь in-memory базы данных.
const MemoryPath = ":memory:"

// Options содержит настройки для SQLite базы данных.
type Options struct {
	// ConnMaxLifetime - максимальное время жизни соединения
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime - максимальное время простоя соединения
	ConnMaxIdleTime time.Duration
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// PingTimeout - таймаут для проверки соединения при открытии
	PingTimeout time.Duration
	// WALMode - использовать ли WAL журнал
	WALMode bool
	// BusyTimeout - сколько драйвер ждёт снятия блокировки при SQLITE_BUSY
	BusyTimeout time.Duration
	// ImmediateTx - начинать транзакции с BEGIN IMMEDIATE
	ImmediateTx bool
}

// DefaultOptions возвращает настройки для журнала доставок:
// один писатель, несколько читателей.
func DefaultOptions() Options {
	return Options{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
		ImmediateTx:     true,
	}
}

// Open открывает базу по пути dbPath с настройками по умолчанию.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	return OpenWithOptions(ctx, dbPath, DefaultOptions())
}

// OpenInMemory открывает in-memory базу. Пул ограничен одним соединением,
// иначе каждое соединение видело бы свою пустую базу.
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	return OpenWithOptions(ctx, MemoryPath, opts)
}

// OpenWithOptions открывает базу с заданными параметрами.
func OpenWithOptions(ctx context.Context, dbPath string, opts Options) (*sql.DB, error) {
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", BuildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// BuildDSN строит DSN для modernc.org/sqlite. PRAGMA передаются через
// параметры _pragma, чтобы драйвер применял их к каждому новому соединению
// пула, а не только к первому.
func BuildDSN(dbPath string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if opts.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.WALMode && dbPath != MemoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	if opts.ImmediateTx {
		q.Set("_txlock", "immediate")
	}
	return dbPath + "?" + q.Encode()
}
