package dispatch

import (
	"fmt"
	"math"

	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

// runPass dispatches at most one call.
//
// The candidate is the oldest queue head among buckets with spare capacity
// and the uncategorized scope. An uncategorized call is only sent while the
// uncategorized in-flight count stays below the smallest spare capacity of
// any known bucket: once classified it may turn out to belong to that
// bucket. The bucket owning the gateway route never counts as the smallest.
//
// The writing flag stays set until the transport reports the call written,
// so passes triggered meanwhile return immediately.
func (s *Scheduler) runPass() {
	if s.writing {
		return
	}
	s.writing = true

	var (
		nextScope    *scope
		nextRoute    route.Key
		fromBucket   bool
		oldest       uint64 = math.MaxUint64
		minRemaining        = s.cfg.DefaultLimit
	)

	gateway := s.reg.ownerOf(s.gateway)
	for h, b := range s.reg.buckets {
		inFlight := b.inFlight.Total()
		if b.Remaining < inFlight {
			panic(fmt.Sprintf("dispatch: bucket %s has %d calls in flight but only %d remaining",
				b.ID, inFlight, b.Remaining))
		}

		capacity := b.Remaining - inFlight
		if handle(h) != gateway {
			minRemaining = min(minRemaining, capacity)
		}
		if capacity <= 0 {
			continue
		}
		if k, seq, ok := b.oldest(oldest); ok {
			oldest = seq
			nextScope = &b.scope
			nextRoute = k
			fromBucket = true
		}
	}

	uncategorized := &s.reg.uncategorized

	if k, seq, ok := uncategorized.oldest(oldest); ok {
		oldest = seq
		nextScope = uncategorized
		nextRoute = k
		fromBucket = false
	}

	if !fromBucket && (len(uncategorized.queues) == 0 || minRemaining <= uncategorized.inFlight.Total()) {
		s.writing = false
		if len(uncategorized.queues) > 0 {
			s.metrics.held()
		}
		s.recordOccupancy()
		return
	}

	c := nextScope.pop(nextRoute)
	s.recordOccupancy()
	s.send(c)
}

// recordOccupancy publishes the queued and in-flight gauges of every scope.
func (s *Scheduler) recordOccupancy() {
	if s.metrics == nil {
		return
	}
	for _, b := range s.reg.buckets {
		s.metrics.occupancy(b.ID, b.queued(), b.inFlight.Total())
	}
	u := &s.reg.uncategorized
	s.metrics.occupancy(UncategorizedLabel, u.queued(), u.inFlight.Total())
}

func (s *Scheduler) send(c *Call) {
	label := s.scopeLabel(c.Route)
	wait := s.clock.Since(c.Created)

	s.logger.Debug("dispatching call",
		"call_id", c.ID,
		"method", c.Request.Method,
		"target", c.Request.Target,
		"scope", label,
		"queued_for", wait,
	)
	s.metrics.dispatched(label, wait)

	s.next.Send(c.Request,
		func() {
			s.post(func() { s.written(c) })
		},
		func(reply *transport.Reply) error {
			var (
				rl  transport.RateLimit
				ok  bool
				err error
			)
			if reply != nil && reply.Err == nil {
				rl, ok, err = transport.ParseRateLimit(reply.Header)
			}
			s.post(func() { s.replied(c, reply, rl, ok, err) })
			return err
		},
	)
}
