package pot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/metrics"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

// RunWatcher periodically scans all pots and reports the ones whose rotation
// is due. It does not rotate: rotation needs the caller's seeds.
func (e *Engine) RunWatcher(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("rotation watcher started", zap.Duration("interval", interval))

	seen := make(map[uint64]uint64) // pot id → round last reported eligible
	for {
		select {
		case <-ctx.Done():
			e.log.Info("rotation watcher stopped")
			return
		case <-ticker.Chan():
			e.scanPots(ctx, seen)
		}
	}
}

// scanPots returns the ids of eligible pots not yet reported for their
// current round.
func (e *Engine) scanPots(ctx context.Context, seen map[uint64]uint64) []uint64 {
	pots, err := e.store.ScanPots(ctx)
	if err != nil {
		metrics.WatcherScansTotal.WithLabelValues("error").Inc()
		e.log.Error("watcher: scan pots", zap.Error(err))
		return nil
	}
	metrics.WatcherScansTotal.WithLabelValues("ok").Inc()

	now := e.clock.Now()
	eligible := 0
	var fresh []uint64
	for _, p := range pots {
		if State(p, now) != types.RotationEligible {
			continue
		}
		eligible++
		if seen[p.ID] == p.CurrentRound {
			continue
		}
		seen[p.ID] = p.CurrentRound
		fresh = append(fresh, p.ID)
		e.log.Info("pot eligible for rotation",
			zap.Uint64("pot", p.ID),
			zap.Uint64("round", p.CurrentRound),
			zap.Int("participants", len(p.Participants)),
			zap.Time("due_at", p.NextRotationAt()),
		)
	}
	metrics.EligiblePots.Set(float64(eligible))
	return fresh
}
