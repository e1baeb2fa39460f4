// CLAUDE:SUMMARY Periodic sweeper that fails snapshots stuck in analyzing after a crash or a lost worker.
// CLAUDE:DEPENDS store
// CLAUDE:EXPORTS Sweeper, SweepConfig, SweepResult
package repair

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/lplens/lplens/internal/store"
)

// InterruptedMessage is the error message set on swept snapshots.
const InterruptedMessage = "analysis interrupted"

// SweepResult reports one snapshot moved to error.
type SweepResult struct {
	SnapshotID string `json:"snapshot_id"`
}

// SweepConfig configures the sweeper.
type SweepConfig struct {
	// Interval between sweeps. Default: 5 minutes.
	Interval time.Duration
	// StaleAfter is how long a snapshot may stay in analyzing. Default: 10 minutes.
	// Must exceed the longest legitimate attempt (capture + analysis budget).
	StaleAfter time.Duration
}

func (c *SweepConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
}

// Sweeper periodically fails stale analyzing snapshots so they can be retried.
type Sweeper struct {
	st     *store.Store
	cfg    SweepConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(st *store.Store, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{st: st, cfg: cfg, logger: logger, now: time.Now}
}

// Run sweeps once immediately, then on every interval. Blocks until ctx.Done().
func (sw *Sweeper) Run(ctx context.Context) {
	sw.logger.Info("sweeper: started", "interval", sw.cfg.Interval, "stale_after", sw.cfg.StaleAfter)
	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	sw.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweeper: stopped")
			return
		case <-ticker.C:
			sw.cycle(ctx)
		}
	}
}

func (sw *Sweeper) cycle(ctx context.Context) {
	if results := sw.SweepOnce(ctx); len(results) > 0 {
		sw.logger.Warn("sweeper: cycle done", "interrupted", len(results))
	}
}

// SweepOnce fails every snapshot in analyzing since before now-StaleAfter.
func (sw *Sweeper) SweepOnce(ctx context.Context) []SweepResult {
	cutoff := sw.now().Add(-sw.cfg.StaleAfter)
	ids, err := sw.st.FailStaleAnalyzing(ctx, cutoff, InterruptedMessage)
	if err != nil {
		sw.logger.Warn("sweeper: fail stale", "error", err)
		return nil
	}
	results := make([]SweepResult, 0, len(ids))
	for _, id := range ids {
		sw.logger.Info("sweeper: snapshot interrupted", "snapshot_id", id)
		results = append(results, SweepResult{SnapshotID: id})
	}
	return results
}
