package dispatch

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

// Call is a queued request waiting for dispatch.
//
// A Call is owned by exactly one queue until it is dispatched. After that
// only its hooks survive, held by the completion continuations.
type Call struct {
	// ID correlates log lines for one call.
	ID uuid.UUID

	// Request is handed to the transport unchanged.
	Request *transport.Request

	// Route is the route key of Request.Target.
	Route route.Key

	// Created is the clock time of submission.
	Created time.Time

	// seq is the submission order; lower is older.
	seq uint64

	onWrite transport.WriteHook
	onRead  transport.ReadHook
}

// queue is a FIFO of calls sharing one route key.
type queue struct {
	calls []*Call
}

func (q *queue) push(c *Call) {
	q.calls = append(q.calls, c)
}

func (q *queue) front() *Call {
	return q.calls[0]
}

func (q *queue) pop() *Call {
	c := q.calls[0]
	q.calls[0] = nil
	q.calls = q.calls[1:]
	return c
}

func (q *queue) len() int {
	return len(q.calls)
}

// merge interleaves other into q by submission order.
func (q *queue) merge(other *queue) {
	if other == nil || other.len() == 0 {
		return
	}
	if q.len() == 0 {
		q.calls = append(q.calls, other.calls...)
		return
	}
	merged := make([]*Call, 0, q.len()+other.len())
	a, b := q.calls, other.calls
	for len(a) > 0 && len(b) > 0 {
		if a[0].seq < b[0].seq {
			merged = append(merged, a[0])
			a = a[1:]
		} else {
			merged = append(merged, b[0])
			b = b[1:]
		}
	}
	merged = append(merged, a...)
	merged = append(merged, b...)
	q.calls = merged
}
