package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Probe and check states reported in JSON.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one component. A nil error means healthy; detail is a
// short human readable summary shown either way, e.g. "12 queued".
type CheckFunc func(ctx context.Context) (detail string, err error)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is what the probe endpoints return.
type Report struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ErrCheckTimeout is reported when a check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// Checker holds the named readiness checks of a running pacer.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// New creates a checker. Each check gets timeout to finish; zero means 5s.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// RegisterCheck adds or replaces the check called name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// ListChecks returns the sorted check names.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is serving.
func (c *Checker) CheckLiveness(context.Context) Report {
	return Report{Status: StatusOK, Timestamp: time.Now()}
}

// CheckReadiness runs every check concurrently and reports StatusDegraded
// if any of them fails.
func (c *Checker) CheckReadiness(ctx context.Context) Report {
	names := c.ListChecks()
	results := make([]CheckResult, len(names))

	c.mu.RLock()
	funcs := make([]CheckFunc, len(names))
	for i, name := range names {
		funcs[i] = c.checks[name]
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for i, check := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, check)
		}()
	}
	wg.Wait()

	report := Report{
		Status:    StatusReady,
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now(),
	}
	for i, name := range names {
		report.Checks[name] = results[i]
		if results[i].Status != StatusOK {
			report.Status = StatusDegraded
		}
	}
	return report
}

type outcome struct {
	detail string
	err    error
}

func (c *Checker) run(ctx context.Context, check CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		detail, err := check(ctx)
		done <- outcome{detail, err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o.err = ErrCheckTimeout
	}

	r := CheckResult{Status: StatusOK, Detail: o.detail, Duration: time.Since(start)}
	if o.err != nil {
		r.Status = StatusUnhealthy
		r.Error = o.err.Error()
	}
	return r
}
