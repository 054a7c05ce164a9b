package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

// DefaultLimit is the bucket size assumed for routes whose bucket is not
// known yet. Most remote buckets allow five calls per window.
const DefaultLimit = 5

// Config configures a Scheduler.
type Config struct {
	// DefaultLimit seeds the minimum spare capacity used to gate
	// uncategorized calls. Default: 5
	DefaultLimit int

	// Classifier maps targets to route keys. Default: route.NewClassifier(nil)
	Classifier *route.Classifier

	// Clock drives reset timers. Default: real clock
	Clock clockwork.Clock

	// Logger receives scheduler logs. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records scheduler metrics. Nil disables metrics.
	Metrics *Metrics
}

// Scheduler admits calls to a Sender without exceeding the rate limits the
// remote service reports in its reply headers.
//
// All scheduler state is owned by the goroutine running Run. Submit, Send
// and the transport hooks only post events to it, so they never block and
// may be called from any goroutine.
type Scheduler struct {
	next    transport.Sender
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics
	gateway route.Key

	mb      *mailbox
	running atomic.Bool

	// Loop-owned state below.
	reg     *registry
	writing bool
	seq     uint64
}

// New creates a scheduler that dispatches through next.
func New(next transport.Sender, cfg Config) *Scheduler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.Classifier == nil {
		cfg.Classifier = route.NewClassifier(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		next:    next,
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "limits.dispatch"),
		metrics: cfg.Metrics,
		gateway: cfg.Classifier.Gateway(),
		mb:      newMailbox(),
		reg:     newRegistry(),
	}
}

// Run processes scheduler events until ctx is cancelled. Only one Run may
// be active at a time.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("scheduler started", "default_limit", s.cfg.DefaultLimit)
	for {
		s.flush()
		select {
		case <-ctx.Done():
			s.stopTimers()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.mb.wake:
		}
	}
}

// flush runs pending events, including events they post, until none are
// left. It returns the number of events run.
func (s *Scheduler) flush() int {
	n := 0
	for {
		events := s.mb.take()
		if len(events) == 0 {
			return n
		}
		for _, ev := range events {
			ev()
		}
		n += len(events)
	}
}

func (s *Scheduler) post(fn func()) {
	s.mb.post(fn)
}

// kick schedules a dispatch pass.
func (s *Scheduler) kick() {
	s.post(s.runPass)
}

// Submit queues a request. The hooks fire on the scheduler goroutine, at
// most once each: onWrite when the request has been written, onRead with
// the reply.
func (s *Scheduler) Submit(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	c := &Call{
		ID:      uuid.New(),
		Request: req,
		Route:   s.cfg.Classifier.Classify(req.Target),
		Created: s.clock.Now(),
		onWrite: onWrite,
		onRead:  onRead,
	}

	s.post(func() {
		s.seq++
		c.seq = s.seq
		sc := s.reg.scopeOf(c.Route)
		sc.push(c)

		s.logger.Debug("call queued",
			"call_id", c.ID,
			"method", req.Method,
			"target", req.Target,
			"route", c.Route,
		)
		s.metrics.submitted(s.scopeLabel(c.Route))
		s.runPass()
	})
}

// Send implements transport.Sender so a Scheduler can be stacked under
// another stage.
func (s *Scheduler) Send(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	s.Submit(req, onWrite, onRead)
}

func (s *Scheduler) scopeLabel(k route.Key) string {
	if _, b, ok := s.reg.lookup(k); ok {
		return b.ID
	}
	return UncategorizedLabel
}

func (s *Scheduler) stopTimers() {
	for _, b := range s.reg.buckets {
		if b.reset != nil {
			b.reset.Stop()
			b.reset = nil
			b.resetGen++
		}
	}
}
