package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/pacer/pkg/limits/dispatch"
	"mercator-hq/pacer/pkg/limits/storage"
)

// Source exposes the scheduler's learned assignments.
type Source interface {
	Assignments(ctx context.Context) ([]dispatch.Assignment, error)
	Warm(assignments []dispatch.Assignment)
}

// Config configures a Snapshotter.
type Config struct {
	// Schedule is a standard cron expression, e.g. "*/5 * * * *".
	// Empty disables periodic snapshots.
	Schedule string

	// Retention drops stored routes not seen for this long after each
	// snapshot. Zero keeps everything.
	Retention time.Duration

	// Observe, if set, is called after every scheduled snapshot.
	Observe func(routes int, err error)
}

// Snapshotter copies assignments from a Source into a storage backend on
// a cron schedule, and restores them at startup.
type Snapshotter struct {
	source  Source
	backend storage.Backend
	config  Config
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// New creates a snapshotter. A nil logger uses slog.Default().
func New(source Source, backend storage.Backend, cfg Config, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		source:  source,
		backend: backend,
		config:  cfg,
		cron:    cron.New(),
		logger:  logger.With("component", "limits.snapshot"),
	}
}

// Restore loads stored assignments and warms the source with them.
// It returns the number of assignments handed over.
func (s *Snapshotter) Restore(ctx context.Context) (int, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load assignments: %w", err)
	}

	assignments := make([]dispatch.Assignment, 0, len(entries))
	for _, e := range entries {
		assignments = append(assignments, dispatch.Assignment{
			Route:  e.Route,
			Bucket: e.Bucket,
			Limit:  e.Limit,
		})
	}
	s.source.Warm(assignments)

	s.logger.Info("assignments restored", "routes", len(assignments))
	return len(assignments), nil
}

// Snapshot saves the source's current assignments. It returns the number
// of routes written.
func (s *Snapshotter) Snapshot(ctx context.Context) (int, error) {
	assignments, err := s.source.Assignments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to collect assignments: %w", err)
	}

	now := time.Now()
	entries := make([]*storage.Assignment, 0, len(assignments))
	for _, a := range assignments {
		entries = append(entries, &storage.Assignment{
			Route:    a.Route,
			Bucket:   a.Bucket,
			Limit:    a.Limit,
			LastSeen: now,
		})
	}
	if len(entries) > 0 {
		if err := s.backend.Save(ctx, entries); err != nil {
			return 0, fmt.Errorf("failed to save assignments: %w", err)
		}
	}

	if s.config.Retention > 0 {
		deleted, err := s.backend.Cleanup(ctx, now.Add(-s.config.Retention))
		if err != nil {
			return len(entries), fmt.Errorf("failed to prune assignments: %w", err)
		}
		if deleted > 0 {
			s.logger.Info("stale assignments pruned", "deleted_count", deleted)
		}
	}

	return len(entries), nil
}

// Start schedules periodic snapshots. With an empty schedule it does
// nothing. The schedule stops when ctx is cancelled.
func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("snapshot schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("snapshot scheduler started",
		"schedule", s.config.Schedule,
		"retention", s.config.Retention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Snapshotter) run(ctx context.Context) {
	n, err := s.Snapshot(ctx)
	if s.config.Observe != nil {
		s.config.Observe(n, err)
	}
	if err != nil {
		s.logger.Error("scheduled snapshot failed", "error", err)
		return
	}
	s.logger.Debug("scheduled snapshot completed", "routes", n)
}

// Stop stops the schedule and waits for a running snapshot to finish.
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("snapshot scheduler stopped")
	}
}

// IsRunning reports whether snapshots are scheduled.
func (s *Snapshotter) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled snapshot time, or nil.
func (s *Snapshotter) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
