package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPingTimeout ограничивает проверку соединения при создании пула.
const DefaultPingTimeout = 5 * time.Second

// PoolConfig - настройки пула поверх DSN. Нулевое поле оставляет значение
// из DSN (pool_max_conns и т.п.) или умолчание pgx.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	PingTimeout     time.Duration
}

// Validate проверяет согласованность лимитов.
func (c PoolConfig) Validate() error {
	if c.MaxConns < 0 || c.MinConns < 0 {
		return fmt.Errorf("pg: negative pool size (max %d, min %d)", c.MaxConns, c.MinConns)
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return fmt.Errorf("pg: min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// apply переносит заданные поля в конфиг pgx.
func (c PoolConfig) apply(cfg *pgxpool.Config) {
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		cfg.MinConns = c.MinConns
	}
	if c.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = c.MaxConnIdleTime
	}
}

// NewPool создает пул подключений и проверяет его пингом.
func NewPool(ctx context.Context, dsn string, pc PoolConfig) (*pgxpool.Pool, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pc.apply(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := pc.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
