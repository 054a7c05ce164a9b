package dispatch

import (
	"mercator-hq/pacer/pkg/limits/multiset"
	"mercator-hq/pacer/pkg/route"
)

// scope is a set of per-route queues plus the in-flight count of those
// routes. Every bucket owns one; the uncategorized scope is the other.
//
// A scope never holds an empty queue: pop deletes the entry that it empties.
type scope struct {
	queues   map[route.Key]*queue
	inFlight *multiset.Counted[route.Key]
}

func newScope() scope {
	return scope{
		queues:   make(map[route.Key]*queue),
		inFlight: multiset.New[route.Key](),
	}
}

func (s *scope) push(c *Call) {
	q, ok := s.queues[c.Route]
	if !ok {
		q = &queue{}
		s.queues[c.Route] = q
	}
	q.push(c)
}

func (s *scope) pop(k route.Key) *Call {
	q, ok := s.queues[k]
	if !ok {
		panic("dispatch: pop from a route with no queue")
	}
	c := q.pop()
	if q.len() == 0 {
		delete(s.queues, k)
	}
	return c
}

// oldest returns the route whose queue head was submitted first, if that
// head is older than bound.
func (s *scope) oldest(bound uint64) (route.Key, uint64, bool) {
	var (
		best  route.Key
		found bool
	)
	for k, q := range s.queues {
		if q.len() == 0 {
			panic("dispatch: empty queue present in scope")
		}
		if seq := q.front().seq; seq < bound {
			bound = seq
			best = k
			found = true
		}
	}
	return best, bound, found
}

func (s *scope) queued() int {
	n := 0
	for _, q := range s.queues {
		n += q.len()
	}
	return n
}

// migrate moves everything this scope holds for k into dst.
func (s *scope) migrate(dst *scope, k route.Key) {
	if q, ok := s.queues[k]; ok {
		delete(s.queues, k)
		if existing, ok := dst.queues[k]; ok {
			existing.merge(q)
		} else {
			dst.queues[k] = q
		}
	}
	s.inFlight.Move(dst.inFlight, k)
}
