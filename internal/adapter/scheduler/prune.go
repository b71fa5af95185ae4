package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Pruner удаляет записи журнала старше заданного момента.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneJob возвращает задачу, удаляющую записи старше retention.
func PruneJob(p Pruner, retention time.Duration, logger *slog.Logger) JobFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		before := time.Now().Add(-retention)
		n, err := p.Prune(ctx, before)
		if err != nil {
			return err
		}
		logger.Info("journal pruned", "removed", n, "before", before.Format(time.RFC3339))
		return nil
	}
}
