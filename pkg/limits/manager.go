package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/pacer/pkg/limits/dispatch"
	"mercator-hq/pacer/pkg/limits/snapshot"
	"mercator-hq/pacer/pkg/limits/storage"
	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

// Manager wires the dispatch scheduler to assignment persistence and
// metrics.
//
// # Example
//
//	manager, err := limits.NewManager(sender, limits.Config{
//	    DefaultLimit:     5,
//	    Storage:          backend,
//	    SnapshotSchedule: "*/5 * * * *",
//	    Registerer:       registry,
//	})
//	go manager.Run(ctx)
//	manager.Submit(&transport.Request{Method: "GET", Target: "/users/@me"}, nil, onRead)
type Manager struct {
	scheduler  *dispatch.Scheduler
	classifier *route.Classifier
	snapshots  *snapshot.Snapshotter
	storage    storage.Backend
	metrics    *Metrics
	logger     *slog.Logger

	// finalSnapshotTimeout bounds the snapshot taken on shutdown.
	finalSnapshotTimeout time.Duration

	closeOnce sync.Once
}

// Config contains configuration for the limits manager.
type Config struct {
	// DefaultLimit is the assumed size of unknown buckets.
	// Default: dispatch.DefaultLimit
	DefaultLimit int

	// MajorParameters are the path collections whose IDs partition
	// buckets. Default: route.DefaultMajorParameters
	MajorParameters []string

	// GatewayPath is the route whose bucket never holds back
	// uncategorized calls. Default: route.GatewayPath
	GatewayPath string

	// Storage persists learned assignments. Default: in-memory backend.
	Storage storage.Backend

	// SnapshotSchedule is the cron expression for saving assignments.
	// Empty saves only on shutdown.
	SnapshotSchedule string

	// Retention prunes stored routes not seen for this long.
	Retention time.Duration

	// Registerer receives metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// Clock drives reset timers. Default: real clock
	Clock clockwork.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewManager creates a manager dispatching through next.
func NewManager(next transport.Sender, config Config) (*Manager, error) {
	if next == nil {
		return nil, errors.New("limits: sender is required")
	}
	if config.Storage == nil {
		config.Storage = storage.NewMemoryBackend()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var (
		metrics      *Metrics
		schedMetrics *dispatch.Metrics
	)
	if config.Registerer != nil {
		metrics = NewMetrics(config.Registerer)
		schedMetrics = dispatch.NewMetrics(config.Registerer)
	}

	classifier := route.NewClassifier(config.MajorParameters).WithGateway(config.GatewayPath)
	scheduler := dispatch.New(next, dispatch.Config{
		DefaultLimit: config.DefaultLimit,
		Classifier:   classifier,
		Clock:        config.Clock,
		Logger:       config.Logger,
		Metrics:      schedMetrics,
	})

	m := &Manager{
		scheduler:            scheduler,
		classifier:           classifier,
		storage:              config.Storage,
		metrics:              metrics,
		logger:               config.Logger.With("component", "limits"),
		finalSnapshotTimeout: 5 * time.Second,
	}
	m.snapshots = snapshot.New(scheduler, config.Storage, snapshot.Config{
		Schedule:  config.SnapshotSchedule,
		Retention: config.Retention,
		Observe:   metrics.snapshot,
	}, config.Logger)

	return m, nil
}

// Run restores stored assignments, starts periodic snapshots and runs the
// scheduler until ctx is cancelled. A final snapshot is taken before the
// scheduler stops.
func (m *Manager) Run(ctx context.Context) error {
	n, err := m.snapshots.Restore(ctx)
	if err != nil {
		m.logger.Warn("starting without stored assignments", "error", err)
	}
	m.metrics.restored(n)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	done := make(chan error, 1)
	go func() { done <- m.scheduler.Run(loopCtx) }()

	snapCtx, stopSnapshots := context.WithCancel(ctx)
	defer stopSnapshots()
	if err := m.snapshots.Start(snapCtx); err != nil {
		stopLoop()
		<-done
		return fmt.Errorf("failed to start snapshots: %w", err)
	}

	select {
	case <-ctx.Done():
	case err := <-done:
		return err
	}

	m.snapshots.Stop()
	m.Snapshot(context.Background())

	stopLoop()
	<-done
	return ctx.Err()
}

// Snapshot saves the current assignments now. Failures are logged and
// counted, not returned, since a missed snapshot only costs rediscovery.
func (m *Manager) Snapshot(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.finalSnapshotTimeout)
	defer cancel()

	n, err := m.snapshots.Snapshot(ctx)
	m.metrics.snapshot(n, err)
	if err != nil {
		m.logger.Error("snapshot failed", "error", err)
		return
	}
	m.logger.Info("assignments saved", "routes", n)
}

// Submit queues req on the scheduler.
func (m *Manager) Submit(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	m.scheduler.Submit(req, onWrite, onRead)
}

// Send implements transport.Sender.
func (m *Manager) Send(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	m.scheduler.Submit(req, onWrite, onRead)
}

// Stats returns a scheduler snapshot. Run must be active.
func (m *Manager) Stats(ctx context.Context) (dispatch.Stats, error) {
	return m.scheduler.Stats(ctx)
}

// Scheduler returns the underlying scheduler.
func (m *Manager) Scheduler() *dispatch.Scheduler {
	return m.scheduler
}

// Classifier returns the classifier the scheduler groups routes with.
func (m *Manager) Classifier() *route.Classifier {
	return m.classifier
}

// Close releases the storage backend.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.storage.Close()
	})
	return err
}
