// internal/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"bazaar/internal/pkg/logger"
)

// ExpireSweep releases up to limit active reservations whose expiry has
// passed, returning how many were released. Each release goes through the
// normal terminal-state path, so sweeping races harmlessly with an explicit
// commit or release arriving at the same moment.
func (e *Engine) ExpireSweep(ctx context.Context, limit int) (int, error) {
	ids, err := e.store.FindExpiredActive(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if err := e.Release(ctx, id); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("reservation_id", id).
				Msg("sweep failed to release expired reservation")
			continue
		}
		released++
		sweepReleasedTotal.Inc()
	}
	if released > 0 {
		logger.Ctx(ctx).Info().Int("released", released).Msg("expiry sweep released abandoned reservations")
	}
	return released, nil
}

// Sweeper periodically reclaims stock from abandoned reservations that were
// never committed or released.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
}

// NewSweeper builds a sweeper around the engine.
func NewSweeper(engine *Engine, interval time.Duration, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, interval: interval, batchSize: batchSize}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.ExpireSweep(ctx, s.batchSize); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}
