package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"notifier/internal/adapter/httpapi"
	"notifier/internal/adapter/scheduler"
	"notifier/internal/adapter/simulated"
	"notifier/internal/adapter/telegram"
	"notifier/internal/adapter/webhook"
	"notifier/internal/channel"
	"notifier/internal/config"
	"notifier/internal/dispatcher"
	"notifier/internal/platform/httpclient"
	"notifier/internal/platform/logger"
	"notifier/internal/platform/pg"
	"notifier/internal/storage/journal"
)

const shutdownTimeout = 15 * time.Second

// ErrNoChannels is returned when no channel has a provider configured.
var ErrNoChannels = errors.New("no channel configured: set EMAIL_WEBHOOK_URL, SMS_WEBHOOK_URL or TELEGRAM_BOT_TOKEN, or run with ENV=dev")

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "notifier",
		Redact:       []string{"webhook_url"},
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() (err error) {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channels, err := BuildChannels(a.cfg, a.log)
	if err != nil {
		return err
	}

	store, err := OpenJournal(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, store.Close()) }()

	disp := dispatcher.New(
		dispatcher.WithLogger(a.log.With("component", "dispatcher")),
		dispatcher.WithJournal(store),
		dispatcher.WithDefaultMaxAttempts(a.cfg.Dispatch.MaxAttempts),
	)
	pool := dispatcher.NewPool(disp, a.cfg.Dispatch.QueueSize)

	sched := scheduler.New(a.log.With("component", "scheduler"))
	if a.cfg.Journal.Retention > 0 {
		if _, err := sched.Add(a.cfg.Journal.PruneSchedule,
			scheduler.PruneJob(store, a.cfg.Journal.Retention, a.log),
			scheduler.JobOptions{Name: "journal-prune", Timeout: time.Minute},
		); err != nil {
			return err
		}
	}
	sched.Start()

	h := httpapi.NewHandler(channels, pool, store, a.cfg.Dispatch.MaxAttempts, a.log.With("component", "httpapi"))
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(h, httpapi.NewRateLimiter(a.cfg.HTTP.RateLimit)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			a.log.Error("server", slog.Any("err", err))
		}
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(
		err,
		srv.Shutdown(shutdownCtx),
		pool.Close(shutdownCtx),
		sched.Stop(shutdownCtx),
	)
}

// PostgresPool returns the journal pool limits from cfg.
func PostgresPool(cfg config.Config) pg.PoolConfig {
	return pg.PoolConfig{
		MaxConns:        int32(cfg.Journal.PostgresMaxConns),
		MinConns:        int32(cfg.Journal.PostgresMinConns),
		MaxConnIdleTime: cfg.Journal.PostgresMaxIdleTime,
	}
}

// OpenJournal opens the journal store selected by cfg.Journal.Driver.
func OpenJournal(ctx context.Context, cfg config.Config) (journal.Store, error) {
	switch cfg.Journal.Driver {
	case config.DriverSQLite:
		return journal.OpenSQLite(ctx, cfg.Journal.SQLitePath)
	case config.DriverPostgres:
		return journal.OpenPostgres(ctx, cfg.Journal.PostgresDSN, PostgresPool(cfg))
	case config.DriverNone, "":
		return journal.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
}

// BuildChannels binds a transport to every channel that has one configured.
// In dev, channels without a provider fall back to a simulated transport. It
// returns ErrNoChannels when none is left.
func BuildChannels(cfg config.Config, log *slog.Logger) (channel.Set, error) {
	opts := []channel.Option{
		channel.WithTimeUnit(cfg.Dispatch.TimeUnit),
		channel.WithMaxDelay(cfg.Dispatch.MaxDelay),
	}
	client := httpclient.New(httpclient.WithLogger(log.With("component", "httpclient")))
	dev := cfg.Env == "dev"

	var chs []channel.Channel
	for _, p := range []struct {
		kind channel.Kind
		url  string
	}{
		{channel.KindEmail, cfg.Providers.EmailWebhookURL},
		{channel.KindSMS, cfg.Providers.SMSWebhookURL},
	} {
		var t channel.Transport
		switch {
		case p.url != "":
			wt, err := webhook.New(client, p.kind, p.url, cfg.Providers.APIKey)
			if err != nil {
				return nil, err
			}
			t = wt
		case dev:
			t = simulated.New(p.kind.String(), 0.5, uint64(time.Now().UnixNano()), log)
		default:
			log.Warn("channel disabled, no provider configured", slog.String("channel", p.kind.String()))
			continue
		}
		ch, err := channel.New(p.kind, t, opts...)
		if err != nil {
			return nil, err
		}
		chs = append(chs, ch)
	}

	switch {
	case cfg.Telegram.Token != "":
		b, err := telegram.NewBot(cfg.Telegram.Token)
		if err != nil {
			return nil, err
		}
		chs = append(chs, channel.NewPush(telegram.NewPush(b, cfg.Telegram.DefaultChatID), opts...))
	case dev:
		chs = append(chs, channel.NewPush(simulated.New("push", 0.5, uint64(time.Now().UnixNano()), log), opts...))
	default:
		log.Warn("channel disabled, no provider configured", slog.String("channel", channel.KindPush.String()))
	}

	if len(chs) == 0 {
		return nil, ErrNoChannels
	}
	return channel.NewSet(chs...), nil
}
