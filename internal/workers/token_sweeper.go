package workers

import (
	"context"
	"time"

	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/features/user/repository"
)

// TokenSweeper periodically deletes refresh-token records that have been
// expired for longer than repository.RetentionGrace.
type TokenSweeper struct {
	purger   repository.Purger
	interval time.Duration
	now      func() time.Time
}

func NewTokenSweeper(purger repository.Purger, interval time.Duration) *TokenSweeper {
	return &TokenSweeper{
		purger:   purger,
		interval: interval,
		now:      time.Now,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *TokenSweeper) Start(ctx context.Context) {
	logger.Info().Dur("interval", w.interval).Msg("Starting refresh token sweeper")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)

		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping refresh token sweeper")
			return
		case <-ticker.C:
		}
	}
}

func (w *TokenSweeper) sweep(ctx context.Context) {
	cutoff := w.now().Add(-repository.RetentionGrace)

	n, err := w.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("Failed to purge expired refresh tokens")
		}
		return
	}
	if n > 0 {
		logger.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("Purged expired refresh tokens")
	}
}
