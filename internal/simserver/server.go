// Package simserver simulates an API that enforces per-bucket rate limits
// and reports them in reply headers. It backs the integration tests and
// the bench command.
package simserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mercator-hq/pacer/pkg/transport"
)

// Config configures a Server.
type Config struct {
	// Limit is the number of calls each bucket allows per window.
	Limit int

	// Window is the fixed window length.
	Window time.Duration

	// Latency delays every reply.
	Latency time.Duration

	// BucketFor maps a request path to its bucket. Defaults to
	// ResourceBucket.
	BucketFor func(path string) string
}

// Stats counts what the server has seen.
type Stats struct {
	Served     int
	Violations int
	Buckets    int
}

// Server is an http.Handler with fixed-window buckets. Calls beyond a
// bucket's limit are answered with 429 and counted as violations.
type Server struct {
	cfg Config

	mu         sync.Mutex
	buckets    map[string]*bucket
	served     int
	violations int
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// New creates a server. Zero Limit and Window default to 5 calls per
// second.
func New(cfg Config) *Server {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.BucketFor == nil {
		cfg.BucketFor = ResourceBucket
	}
	return &Server{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}
}

// ResourceBucket groups every path under the same top-level resource,
// e.g. all of /channels/1/... share one bucket.
func ResourceBucket(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return strings.Trim(path, "/")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Latency > 0 {
		time.Sleep(s.cfg.Latency)
	}

	s.mu.Lock()
	id := s.cfg.BucketFor(r.URL.Path)
	b, ok := s.buckets[id]
	now := time.Now()
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{remaining: s.cfg.Limit, resetAt: now.Add(s.cfg.Window)}
		s.buckets[id] = b
	}
	b.remaining--
	over := b.remaining < 0
	if over {
		s.violations++
		b.remaining = 0
	} else {
		s.served++
	}
	remaining := b.remaining
	resetAfter := b.resetAt.Sub(now)
	s.mu.Unlock()

	h := w.Header()
	h.Set(transport.HeaderBucket, id)
	h.Set(transport.HeaderLimit, strconv.Itoa(s.cfg.Limit))
	h.Set(transport.HeaderRemaining, strconv.Itoa(remaining))
	// Rounded up so a client never resets before the server does.
	h.Set(transport.HeaderResetAfter, fmt.Sprintf("%.3f", resetAfter.Seconds()+0.001))
	if over {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Served:     s.served,
		Violations: s.violations,
		Buckets:    len(s.buckets),
	}
}
