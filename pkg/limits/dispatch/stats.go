package dispatch

import (
	"context"
	"sort"

	"mercator-hq/pacer/pkg/route"
)

// BucketStats describes one bucket.
type BucketStats struct {
	ID         string `json:"id"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	InFlight   int    `json:"in_flight"`
	Queued     int    `json:"queued"`
	Routes     int    `json:"routes"`
	ResetArmed bool   `json:"reset_armed"`
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Buckets               []BucketStats `json:"buckets"`
	UncategorizedQueued   int           `json:"uncategorized_queued"`
	UncategorizedInFlight int           `json:"uncategorized_in_flight"`
	Writing               bool          `json:"writing"`
}

// Queued returns the number of calls waiting in all scopes.
func (st Stats) Queued() int {
	n := st.UncategorizedQueued
	for _, b := range st.Buckets {
		n += b.Queued
	}
	return n
}

// InFlight returns the number of calls written but not yet replied to.
func (st Stats) InFlight() int {
	n := st.UncategorizedInFlight
	for _, b := range st.Buckets {
		n += b.InFlight
	}
	return n
}

// Stats collects a snapshot from the event loop. It fails with
// ErrNotRunning when Run is not active.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.query(ctx, func() { st = s.stats() }); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *Scheduler) stats() Stats {
	routes := make(map[handle]int)
	for _, h := range s.reg.routeToBucket {
		routes[h]++
	}

	st := Stats{
		Buckets:               make([]BucketStats, 0, len(s.reg.buckets)),
		UncategorizedQueued:   s.reg.uncategorized.queued(),
		UncategorizedInFlight: s.reg.uncategorized.inFlight.Total(),
		Writing:               s.writing,
	}
	for h, b := range s.reg.buckets {
		st.Buckets = append(st.Buckets, BucketStats{
			ID:         b.ID,
			Limit:      b.Limit,
			Remaining:  b.Remaining,
			InFlight:   b.inFlight.Total(),
			Queued:     b.queued(),
			Routes:     routes[handle(h)],
			ResetArmed: b.reset != nil,
		})
	}
	sort.Slice(st.Buckets, func(i, j int) bool { return st.Buckets[i].ID < st.Buckets[j].ID })
	return st
}

// Assignment records that a route belongs to a bucket.
type Assignment struct {
	Route  route.Key
	Bucket string
	Limit  int
}

// Assignments lists the discovered route-to-bucket mappings.
func (s *Scheduler) Assignments(ctx context.Context) ([]Assignment, error) {
	var out []Assignment
	if err := s.query(ctx, func() { out = s.assignments() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scheduler) assignments() []Assignment {
	out := make([]Assignment, 0, len(s.reg.routeToBucket))
	for k, h := range s.reg.routeToBucket {
		b := s.reg.buckets[h]
		out = append(out, Assignment{Route: k, Bucket: b.ID, Limit: b.Limit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Warm preloads assignments, typically from a previous run. Routes that
// are already mapped are left alone. A preloaded bucket admits one call
// until a reply reports its real state, since the remote window may still
// be partly spent.
func (s *Scheduler) Warm(assignments []Assignment) {
	s.post(func() {
		n := 0
		for _, a := range assignments {
			if a.Bucket == "" || a.Limit < 1 {
				continue
			}
			if _, _, mapped := s.reg.lookup(a.Route); mapped {
				continue
			}
			h, b, fresh := s.reg.ensure(a.Bucket)
			if fresh {
				b.Limit = a.Limit
				b.Remaining = 1
			}
			s.reg.assign(a.Route, h)
			b.floor()
			n++
		}
		s.logger.Info("registry warmed", "routes", n, "buckets", len(s.reg.buckets))
		s.recordOccupancy()
		s.kick()
	})
}

// query runs fn on the event loop and waits for it.
func (s *Scheduler) query(ctx context.Context, fn func()) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	s.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
