package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/pacer/pkg/transport"
)

// sent is one call captured by fakeSender.
type sent struct {
	req     *transport.Request
	onWrite transport.WriteHook
	onRead  transport.ReadHook
}

// fakeSender records sends; the test decides when they complete.
type fakeSender struct {
	sends []*sent
}

func (f *fakeSender) Send(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	f.sends = append(f.sends, &sent{req: req, onWrite: onWrite, onRead: onRead})
}

func (f *fakeSender) targets() []string {
	out := make([]string, len(f.sends))
	for i, s := range f.sends {
		out[i] = s.req.Target
	}
	return out
}

type harness struct {
	t      *testing.T
	s      *Scheduler
	sender *fakeSender
	clock  clockwork.FakeClock
}

func newHarness(t *testing.T, defaultLimit int) *harness {
	t.Helper()
	sender := &fakeSender{}
	clock := clockwork.NewFakeClock()
	s := New(sender, Config{
		DefaultLimit: defaultLimit,
		Clock:        clock,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &harness{t: t, s: s, sender: sender, clock: clock}
}

// settle runs all pending events and checks the scheduler invariants.
func (h *harness) settle() {
	h.t.Helper()
	h.s.flush()
	checkInvariants(h.t, h.s)
}

func (h *harness) submit(method, target string) *transport.Request {
	h.t.Helper()
	req := &transport.Request{Method: method, Target: target}
	h.s.Submit(req, nil, nil)
	h.settle()
	return req
}

func (h *harness) write(i int) {
	h.t.Helper()
	h.sender.sends[i].onWrite()
	h.settle()
}

func (h *harness) reply(i int, hdr http.Header) error {
	h.t.Helper()
	err := h.sender.sends[i].onRead(&transport.Reply{Status: http.StatusOK, Header: hdr})
	h.settle()
	return err
}

// waitFor flushes events until cond holds. Timer callbacks of the fake
// clock may arrive on another goroutine.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.settle()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) bucket(id string) *bucket {
	h.t.Helper()
	hd, ok := h.s.reg.byID[id]
	if !ok {
		h.t.Fatalf("bucket %q not found", id)
	}
	return h.s.reg.buckets[hd]
}

func limitHeaders(bucket string, limit, remaining int, resetAfter time.Duration) http.Header {
	hdr := http.Header{}
	hdr.Set(transport.HeaderBucket, bucket)
	hdr.Set(transport.HeaderLimit, strconv.Itoa(limit))
	hdr.Set(transport.HeaderRemaining, strconv.Itoa(remaining))
	hdr.Set(transport.HeaderResetAfter, fmt.Sprintf("%g", resetAfter.Seconds()))
	return hdr
}

func checkInvariants(t *testing.T, s *Scheduler) {
	t.Helper()
	for _, b := range s.reg.buckets {
		if b.Remaining < b.inFlight.Total() {
			t.Fatalf("bucket %s: remaining %d < in flight %d", b.ID, b.Remaining, b.inFlight.Total())
		}
		checkScope(t, b.ID, &b.scope)
	}
	checkScope(t, UncategorizedLabel, &s.reg.uncategorized)
}

func checkScope(t *testing.T, name string, sc *scope) {
	t.Helper()
	for k, q := range sc.queues {
		if q.len() == 0 {
			t.Fatalf("scope %s: empty queue for route %s", name, k)
		}
		for i := 1; i < q.len(); i++ {
			if q.calls[i-1].seq >= q.calls[i].seq {
				t.Fatalf("scope %s: route %s queue out of order", name, k)
			}
		}
	}
}
