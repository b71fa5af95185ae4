package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, 3, c.Dispatch.MaxAttempts)
	assert.Equal(t, time.Second, c.Dispatch.TimeUnit)
	assert.Zero(t, c.Dispatch.MaxDelay)
	assert.Equal(t, DriverNone, c.Journal.Driver)
	assert.Equal(t, 30*24*time.Hour, c.Journal.Retention)
	assert.Equal(t, "@every 1h", c.Journal.PruneSchedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "5")
	t.Setenv("DISPATCH_TIME_UNIT", "100ms")
	t.Setenv("DISPATCH_MAX_DELAY", "2s")
	t.Setenv("JOURNAL_DRIVER", "SQLite")
	t.Setenv("JOURNAL_SQLITE_PATH", "/tmp/j.sqlite")
	t.Setenv("EMAIL_WEBHOOK_URL", "https://mail.example.com/send")
	t.Setenv("API_RATE_LIMIT", "250ms")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, 5, c.Dispatch.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, c.Dispatch.TimeUnit)
	assert.Equal(t, 2*time.Second, c.Dispatch.MaxDelay)
	assert.Equal(t, DriverSQLite, c.Journal.Driver)
	assert.Equal(t, "/tmp/j.sqlite", c.Journal.SQLitePath)
	assert.Equal(t, 250*time.Millisecond, c.HTTP.RateLimit)
}

func TestLoadPostgresPool(t *testing.T) {
	t.Setenv("JOURNAL_DRIVER", "postgres")
	t.Setenv("JOURNAL_PG_DSN", "postgres://notifier@localhost/notifier")
	t.Setenv("JOURNAL_PG_MAX_CONNS", "8")
	t.Setenv("JOURNAL_PG_MIN_CONNS", "2")
	t.Setenv("JOURNAL_PG_MAX_IDLE_TIME", "5m")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, c.Journal.PostgresMaxConns)
	assert.Equal(t, 2, c.Journal.PostgresMinConns)
	assert.Equal(t, 5*time.Minute, c.Journal.PostgresMaxIdleTime)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad env":              {"ENV": "staging"},
		"negative attempts":    {"DISPATCH_MAX_ATTEMPTS": "-1"},
		"not a number":         {"DISPATCH_MAX_ATTEMPTS": "three"},
		"bad duration":         {"DISPATCH_TIME_UNIT": "soon"},
		"zero unit":            {"DISPATCH_TIME_UNIT": "0s"},
		"unknown driver":       {"JOURNAL_DRIVER": "mysql"},
		"postgres without dsn": {"JOURNAL_DRIVER": "postgres"},
		"bad webhook url":      {"SMS_WEBHOOK_URL": "not a url"},
		"chat without token":   {"TELEGRAM_DEFAULT_CHAT_ID": "42"},
		"negative pg conns":    {"JOURNAL_PG_MAX_CONNS": "-2"},
		"pg min above max":     {"JOURNAL_PG_MAX_CONNS": "2", "JOURNAL_PG_MIN_CONNS": "5"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
