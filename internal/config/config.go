package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Journal drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
		// RateLimit is the minimum interval between intake requests per
		// client IP; zero disables limiting.
		RateLimit time.Duration `validate:"gte=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Dispatch struct {
		MaxAttempts int           `validate:"gte=0,lte=20"`
		TimeUnit    time.Duration `validate:"gt=0"`
		MaxDelay    time.Duration `validate:"gte=0"`
		QueueSize   int           `validate:"gt=0"`
	}
	Journal struct {
		Driver      string `validate:"required,oneof=none sqlite postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		PostgresDSN string `validate:"required_if=Driver postgres"`

		// Pool limits override the DSN's pool_* settings when non-zero.
		PostgresMaxConns    int           `validate:"gte=0,lte=1000"`
		PostgresMinConns    int           `validate:"gte=0"`
		PostgresMaxIdleTime time.Duration `validate:"gte=0"`
		Retention           time.Duration `validate:"gte=0"`
		PruneSchedule       string
	}
	Providers struct {
		EmailWebhookURL string `validate:"omitempty,url"`
		SMSWebhookURL   string `validate:"omitempty,url"`
		APIKey          string
	}
	Telegram struct {
		Token         string
		DefaultChatID string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c    Config
		errs []error
	)
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.HTTP.RateLimit = duration("API_RATE_LIMIT", 0, &errs)
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = os.Getenv("LOG_FILE")

	c.Dispatch.MaxAttempts = integer("DISPATCH_MAX_ATTEMPTS", 3, &errs)
	c.Dispatch.TimeUnit = duration("DISPATCH_TIME_UNIT", time.Second, &errs)
	c.Dispatch.MaxDelay = duration("DISPATCH_MAX_DELAY", 0, &errs)
	c.Dispatch.QueueSize = integer("DISPATCH_QUEUE_SIZE", 1024, &errs)

	c.Journal.Driver = strings.ToLower(getenv("JOURNAL_DRIVER", DriverNone))
	c.Journal.SQLitePath = getenv("JOURNAL_SQLITE_PATH", "data/journal.sqlite")
	c.Journal.PostgresDSN = os.Getenv("JOURNAL_PG_DSN")
	c.Journal.PostgresMaxConns = integer("JOURNAL_PG_MAX_CONNS", 0, &errs)
	c.Journal.PostgresMinConns = integer("JOURNAL_PG_MIN_CONNS", 0, &errs)
	c.Journal.PostgresMaxIdleTime = duration("JOURNAL_PG_MAX_IDLE_TIME", 0, &errs)
	c.Journal.Retention = duration("JOURNAL_RETENTION", 30*24*time.Hour, &errs)
	c.Journal.PruneSchedule = getenv("JOURNAL_PRUNE_SCHEDULE", "@every 1h")

	c.Providers.EmailWebhookURL = os.Getenv("EMAIL_WEBHOOK_URL")
	c.Providers.SMSWebhookURL = os.Getenv("SMS_WEBHOOK_URL")
	c.Providers.APIKey = os.Getenv("PROVIDER_API_KEY")
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.DefaultChatID = os.Getenv("TELEGRAM_DEFAULT_CHAT_ID")

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.Journal.PostgresMaxConns > 0 && c.Journal.PostgresMinConns > c.Journal.PostgresMaxConns {
		return Config{}, errors.New("JOURNAL_PG_MIN_CONNS must not exceed JOURNAL_PG_MAX_CONNS")
	}
	if c.Telegram.DefaultChatID != "" && c.Telegram.Token == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN required when TELEGRAM_DEFAULT_CHAT_ID is set")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func integer(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}
