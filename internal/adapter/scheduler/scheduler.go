// Package scheduler запускает фоновые задачи обслуживания по cron-расписанию.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// JobOptions содержит опции задачи.
type JobOptions struct {
	// Name - имя задачи для логирования.
	Name string
	// Timeout - максимальное время выполнения задачи (0 - без ограничения).
	Timeout time.Duration
	// AllowOverlap разрешает запуск, пока предыдущий ещё выполняется.
	// По умолчанию такой запуск пропускается.
	AllowOverlap bool
}

// cronLogger адаптер cron.Logger поверх slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}

// Scheduler управляет периодическими задачами.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// New создает планировщик. Расписания принимают поле секунд и дескрипторы
// вида "@every 1h".
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add регистрирует задачу по расписанию schedule.
func (s *Scheduler) Add(schedule string, job JobFunc, opts JobOptions) (cron.EntryID, error) {
	if opts.Name == "" {
		opts.Name = "unnamed"
	}
	var wrapped cron.Job = cron.FuncJob(func() { s.run(job, opts) })
	if !opts.AllowOverlap {
		wrapped = cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger})).Then(wrapped)
	}

	id, err := s.cron.AddJob(schedule, wrapped)
	if err != nil {
		return 0, fmt.Errorf("add job %s: %w", opts.Name, err)
	}
	s.logger.Info("job scheduled", "name", opts.Name, "schedule", schedule, "id", id)
	return id, nil
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()
	})
}

// Stop отменяет контекст выполняющихся задач и ждет их завершения,
// но не дольше дедлайна ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		done := s.cron.Stop()
		select {
		case <-done.Done():
			s.logger.Info("scheduler stopped")
		case <-ctx.Done():
			s.logger.Warn("scheduler stop deadline exceeded")
			err = ctx.Err()
		}
	})
	return err
}

// run выполняет задачу с таймаутом и восстановлением после паники.
func (s *Scheduler) run(job JobFunc, opts JobOptions) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "name", opts.Name, "panic", r)
		}
	}()

	ctx := s.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "name", opts.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("job completed", "name", opts.Name, "duration", time.Since(start))
}
