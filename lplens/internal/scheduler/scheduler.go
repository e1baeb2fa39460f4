// Package scheduler polls for pending snapshots and hands them to the
// pipeline, so a freshly created landing page is analyzed without an
// explicit trigger.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lplens/lplens/internal/store"
)

// Config configures the scheduler.
type Config struct {
	// PollInterval is how often to look for pending snapshots. Default: 15s.
	PollInterval time.Duration
	// Concurrency bounds the analyses running at once. Default: 2.
	Concurrency int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
}

// JobSink runs one claimed job. The snapshot is already in analyzing.
type JobSink func(ctx context.Context, job store.PendingJob) error

// Scheduler claims pending snapshots and dispatches them.
type Scheduler struct {
	st     *store.Store
	sink   JobSink
	config Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(st *store.Store, sink JobSink, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{st: st, sink: sink, config: cfg, logger: logger}
}

// Run polls on a ticker. Blocks until ctx is cancelled and running jobs
// have returned.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce claims up to Concurrency pending snapshots, runs them, and
// waits for them. Returns the number of jobs dispatched.
func (s *Scheduler) PollOnce(ctx context.Context) int {
	jobs, err := s.st.ListPendingSnapshots(ctx, s.config.Concurrency)
	if err != nil {
		s.logger.Error("scheduler: list pending", "error", err)
		return 0
	}

	dispatched := 0
	for _, job := range jobs {
		ok, err := s.st.ClaimPending(ctx, job.SnapshotID)
		if err != nil {
			s.logger.Warn("scheduler: claim", "snapshot_id", job.SnapshotID, "error", err)
			continue
		}
		if !ok {
			continue // picked up by an explicit trigger in between
		}
		dispatched++
		s.wg.Add(1)
		go func(job store.PendingJob) {
			defer s.wg.Done()
			if err := s.sink(ctx, job); err != nil {
				s.logger.Warn("scheduler: job failed", "snapshot_id", job.SnapshotID, "lp_id", job.LandingPageID, "error", err)
			}
		}(job)
	}
	s.wg.Wait()

	if dispatched > 0 {
		s.logger.Debug("scheduler: dispatched", "jobs", dispatched)
	}
	return dispatched
}
