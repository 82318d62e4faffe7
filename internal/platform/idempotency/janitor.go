package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor deletes expired records every interval until ctx is done.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if store == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.CleanupExpired(ctx, now, 0)
			if err != nil {
				logger.Warn("idempotency.cleanup_failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency.cleanup", zap.Int("removed", removed))
			}
		}
	}
}
