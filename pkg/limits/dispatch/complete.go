package dispatch

import (
	"time"

	"mercator-hq/pacer/pkg/transport"
)

// written runs once the transport has flushed c. The call now counts
// against whichever scope owns its route, and the next pass may start.
//
// A reply for another call of the same bucket may have lowered Remaining
// while c was still being written, so the bucket is floored again here.
func (s *Scheduler) written(c *Call) {
	s.reg.scopeOf(c.Route).inFlight.Insert(c.Route, 1)
	if _, b, ok := s.reg.lookup(c.Route); ok && b.floor() {
		s.logger.Debug("bucket exhausted by late write", "bucket", b.ID, "remaining", b.Remaining)
		s.metrics.bucket(b)
	}
	s.writing = false
	s.kick()

	if c.onWrite != nil {
		c.onWrite()
	}
}

// replied runs once the reply for c has arrived. rl and ok come from the
// reply headers; parseErr is set when they were malformed.
func (s *Scheduler) replied(c *Call, reply *transport.Reply, rl transport.RateLimit, ok bool, parseErr error) {
	k := c.Route
	s.reg.scopeOf(k).inFlight.Erase(k, 1)

	switch {
	case reply != nil && reply.Err != nil:
		s.logger.Warn("call failed in transport",
			"call_id", c.ID,
			"target", c.Request.Target,
			"error", reply.Err,
		)
	case parseErr != nil:
		s.logger.Warn("ignoring malformed rate limit headers",
			"call_id", c.ID,
			"target", c.Request.Target,
			"error", parseErr,
		)
		s.metrics.headerError()
	case ok:
		s.observe(c, rl)
	}

	s.kick()

	if c.onRead != nil {
		if err := c.onRead(reply); err != nil {
			s.logger.Warn("read hook failed", "call_id", c.ID, "error", err)
		}
	}
}

// observe folds the reported limits into the bucket that owns c's route,
// moving the route to a new bucket first when the identity changed.
func (s *Scheduler) observe(c *Call, rl transport.RateLimit) {
	k := c.Route
	h, b, mapped := s.reg.lookup(k)

	fresh := false
	if !mapped || b.ID != rl.Bucket {
		from := UncategorizedLabel
		if mapped {
			from = b.ID
		}
		h, b, fresh = s.reg.ensure(rl.Bucket)
		s.reg.assign(k, h)

		s.logger.Debug("route migrated",
			"route", k,
			"from", from,
			"to", b.ID,
			"target", c.Request.Target,
		)
		s.metrics.migrated()
		s.recordOccupancy()
	}

	b.Limit = rl.Limit
	if fresh {
		b.Remaining = rl.Remaining
	} else {
		b.Remaining = min(b.Remaining, rl.Remaining)
	}

	// Calls we still count in flight may already be included in the
	// reported figure. Treat the bucket as exhausted rather than let the
	// count drop below what is outstanding.
	if reported := b.Remaining; b.floor() {
		s.logger.Warn("bucket reports less remaining than calls in flight",
			"bucket", b.ID,
			"remaining", reported,
			"in_flight", b.inFlight.Total(),
		)
	}

	s.armReset(h, rl.ResetAfter)
	s.metrics.bucket(b)
}

// armReset replaces any pending reset of bucket h with one that fires
// after d.
func (s *Scheduler) armReset(h handle, d time.Duration) {
	b := s.reg.buckets[h]
	if b.reset != nil {
		b.reset.Stop()
	}
	b.resetGen++
	gen := b.resetGen
	b.reset = s.clock.AfterFunc(d, func() {
		s.post(func() { s.resetFired(h, gen) })
	})
}

// resetFired refills bucket h unless the timer was superseded.
func (s *Scheduler) resetFired(h handle, gen uint64) {
	b := s.reg.buckets[h]
	if gen != b.resetGen {
		return
	}
	b.reset = nil
	b.Remaining = max(b.Limit, b.inFlight.Total())

	s.logger.Debug("bucket reset", "bucket", b.ID, "remaining", b.Remaining)
	s.metrics.reset(b)
	s.kick()
}
