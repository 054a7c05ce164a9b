package dispatch

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

var _ transport.Sender = (*Scheduler)(nil)

// TestScheduler_FIFOWithinRoute verifies calls sharing a route leave in
// submission order and that a new pass waits for the previous write.
func TestScheduler_FIFOWithinRoute(t *testing.T) {
	h := newHarness(t, 5)

	h.submit("POST", "/channels/1/messages?n=a")
	h.submit("POST", "/channels/1/messages?n=b")
	h.submit("POST", "/channels/1/messages?n=c")

	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("expected one send before the first write completes, got %d", got)
	}

	h.write(0)
	h.write(1)

	want := []string{"/channels/1/messages?n=a", "/channels/1/messages?n=b", "/channels/1/messages?n=c"}
	if got := h.sender.targets(); !reflect.DeepEqual(got, want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
	if got := h.s.reg.uncategorized.inFlight.Total(); got != 2 {
		t.Errorf("uncategorized in flight = %d, want 2", got)
	}
}

// TestScheduler_UncategorizedCappedByDefaultLimit verifies that with no
// bucket known, at most DefaultLimit unclassified calls are in flight.
func TestScheduler_UncategorizedCappedByDefaultLimit(t *testing.T) {
	h := newHarness(t, 3)

	for i := 0; i < 6; i++ {
		h.submit("GET", "/users/@me")
	}
	for i := 0; i < len(h.sender.sends); i++ {
		h.write(i)
	}

	if got := len(h.sender.sends); got != 3 {
		t.Fatalf("expected 3 sends, got %d", got)
	}
	if got := h.s.reg.uncategorized.queued(); got != 3 {
		t.Errorf("expected 3 calls still queued, got %d", got)
	}

	// A reply without a bucket frees a slot.
	if err := h.reply(0, http.Header{}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got := len(h.sender.sends); got != 4 {
		t.Errorf("expected a fourth send after a slot freed, got %d", got)
	}
	if len(h.s.reg.buckets) != 0 {
		t.Errorf("a reply without bucket header must not create a bucket")
	}
}

// TestScheduler_ExactlyOnce runs many calls across routes against a
// simulated server and checks nothing is lost or duplicated.
func TestScheduler_ExactlyOnce(t *testing.T) {
	h := newHarness(t, 5)

	targets := []string{
		"/channels/1/messages",
		"/channels/2/messages",
		"/guilds/9/members",
		"/users/1/profile",
		"/users/2/profile",
	}
	bucketOf := map[string]string{
		"/channels/1/messages": "msg-1",
		"/channels/2/messages": "msg-2",
		"/guilds/9/members":    "members",
		"/users/1/profile":     "profile",
		"/users/2/profile":     "profile",
	}

	submitted := make(map[*transport.Request]bool)
	for i := 0; i < 60; i++ {
		submitted[h.submit("GET", targets[i%len(targets)])] = true
	}

	served := make(map[string]int)
	seen := make(map[*transport.Request]int)
	for i := 0; i < len(h.sender.sends); i++ {
		req := h.sender.sends[i].req
		seen[req]++
		h.write(i)

		b := bucketOf[req.Target]
		served[b]++
		if err := h.reply(i, limitHeaders(b, 100, 100-served[b], time.Minute)); err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
	}

	if len(seen) != len(submitted) {
		t.Fatalf("dispatched %d distinct calls, submitted %d", len(seen), len(submitted))
	}
	for req, n := range seen {
		if !submitted[req] {
			t.Errorf("dispatched unknown request %s", req.Target)
		}
		if n != 1 {
			t.Errorf("request %s dispatched %d times", req.Target, n)
		}
	}
	if st := h.s.stats(); st.Queued() != 0 || st.InFlight() != 0 {
		t.Errorf("expected drained scheduler, got queued=%d in_flight=%d", st.Queued(), st.InFlight())
	}
}

// TestScheduler_Migration verifies a route moves to the bucket its reply
// names, along with queued calls, and later calls go straight there.
func TestScheduler_Migration(t *testing.T) {
	h := newHarness(t, 1)
	const target = "/channels/7/messages"
	k := route.Classify(target)

	h.submit("POST", target)
	h.write(0)
	h.submit("POST", target) // held: uncategorized in flight == DefaultLimit

	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("expected second call held, got %d sends", got)
	}
	if got := h.s.reg.uncategorized.queued(); got != 1 {
		t.Fatalf("expected 1 uncategorized queued call, got %d", got)
	}

	if err := h.reply(0, limitHeaders("X", 5, 4, time.Second)); err != nil {
		t.Fatalf("reply: %v", err)
	}

	x := h.bucket("X")
	if _, owner, ok := h.s.reg.lookup(k); !ok || owner != x {
		t.Fatalf("route not mapped to bucket X")
	}
	if len(h.s.reg.uncategorized.queues) != 0 {
		t.Errorf("uncategorized queues not emptied by migration")
	}
	if got := len(h.sender.sends); got != 2 {
		t.Fatalf("expected migrated call dispatched from bucket X, got %d sends", got)
	}

	h.write(1)
	if got := x.inFlight.Count(k); got != 1 {
		t.Errorf("bucket X in flight for route = %d, want 1", got)
	}
	if got := h.s.reg.uncategorized.inFlight.Total(); got != 0 {
		t.Errorf("uncategorized in flight = %d, want 0", got)
	}

	// A later submit for the same route is queued under X directly.
	h.s.writing = true
	h.submit("POST", target)
	if _, ok := x.queues[k]; !ok {
		t.Errorf("expected new call queued in bucket X")
	}
	if got := h.s.reg.uncategorized.queued(); got != 0 {
		t.Errorf("new call queued as uncategorized")
	}
	h.s.writing = false
	h.s.kick()
	h.settle()
	if got := len(h.sender.sends); got != 3 {
		t.Errorf("expected third send from bucket X, got %d sends", got)
	}
}

// TestScheduler_InFlightMigration verifies in-flight counts move with the
// route and are not double counted.
func TestScheduler_InFlightMigration(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/guilds/3/roles"
	k := route.Classify(target)

	h.submit("GET", target)
	h.write(0)
	h.submit("GET", target)
	h.write(1)

	if got := h.s.reg.uncategorized.inFlight.Count(k); got != 2 {
		t.Fatalf("expected 2 uncategorized in flight, got %d", got)
	}

	if err := h.reply(0, limitHeaders("roles", 10, 8, time.Second)); err != nil {
		t.Fatalf("reply: %v", err)
	}

	b := h.bucket("roles")
	if got := b.inFlight.Count(k); got != 1 {
		t.Errorf("bucket in flight = %d, want 1", got)
	}
	if got := h.s.reg.uncategorized.inFlight.Total(); got != 0 {
		t.Errorf("uncategorized in flight = %d, want 0", got)
	}

	if err := h.reply(1, limitHeaders("roles", 10, 7, time.Second)); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got := b.inFlight.Total(); got != 0 {
		t.Errorf("bucket in flight after both replies = %d, want 0", got)
	}
	if b.Remaining != 7 {
		t.Errorf("remaining = %d, want 7", b.Remaining)
	}
}

// TestScheduler_RemainingNeverRises verifies a stale reply cannot raise
// the remaining count within a window.
func TestScheduler_RemainingNeverRises(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/1/pins"

	h.submit("GET", target)
	h.write(0)
	h.submit("GET", target)
	h.write(1)

	if err := h.reply(1, limitHeaders("pins", 5, 2, time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := h.reply(0, limitHeaders("pins", 5, 3, time.Second)); err != nil {
		t.Fatal(err)
	}

	if got := h.bucket("pins").Remaining; got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
}

// TestScheduler_ConservativeAdmission verifies an exhausted known bucket
// holds back unrelated uncategorized calls until it resets.
func TestScheduler_ConservativeAdmission(t *testing.T) {
	h := newHarness(t, 5)

	h.submit("GET", "/channels/1/messages")
	h.write(0)
	if err := h.reply(0, limitHeaders("X", 5, 0, 10*time.Second)); err != nil {
		t.Fatal(err)
	}

	h.submit("GET", "/users/1/profile")
	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("uncategorized call dispatched while a known bucket is exhausted")
	}

	h.clock.Advance(10 * time.Second)
	h.waitFor("uncategorized dispatch after reset", func() bool {
		return len(h.sender.sends) == 2
	})

	if got := h.bucket("X").Remaining; got != 5 {
		t.Errorf("remaining after reset = %d, want 5", got)
	}
	if got := h.sender.sends[1].req.Target; got != "/users/1/profile" {
		t.Errorf("dispatched %s, want the held call", got)
	}
}

// TestScheduler_ResetTimer verifies an exhausted bucket stays closed until
// the reported reset delay elapses.
func TestScheduler_ResetTimer(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/4/messages"

	h.submit("POST", target)
	h.write(0)
	if err := h.reply(0, limitHeaders("chan-4", 5, 0, 5*time.Second)); err != nil {
		t.Fatal(err)
	}
	if h.bucket("chan-4").reset == nil {
		t.Fatal("reset timer not armed")
	}

	h.submit("POST", target)
	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("call dispatched into an exhausted bucket")
	}

	h.clock.Advance(4 * time.Second)
	h.settle()
	time.Sleep(10 * time.Millisecond)
	h.settle()
	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("call dispatched before the reset delay elapsed")
	}

	h.clock.Advance(time.Second)
	h.waitFor("dispatch after reset", func() bool { return len(h.sender.sends) == 2 })

	b := h.bucket("chan-4")
	if b.Remaining != b.Limit {
		t.Errorf("remaining = %d, want limit %d", b.Remaining, b.Limit)
	}
	if b.reset != nil {
		t.Errorf("fired timer still recorded")
	}
}

// TestScheduler_SupersededTimerIgnored verifies a reset armed by an older
// reply has no effect once a newer reply re-armed the timer.
func TestScheduler_SupersededTimerIgnored(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/5/messages"

	h.submit("POST", target)
	h.write(0)
	h.submit("POST", target)
	h.write(1)

	hd := h.s.reg.byID
	if err := h.reply(0, limitHeaders("c5", 5, 1, 2*time.Second)); err != nil {
		t.Fatal(err)
	}
	staleGen := h.s.reg.buckets[hd["c5"]].resetGen
	if err := h.reply(1, limitHeaders("c5", 5, 0, 6*time.Second)); err != nil {
		t.Fatal(err)
	}

	// Deliver the stale timer's event by hand; it must be ignored.
	h.s.resetFired(hd["c5"], staleGen)
	if got := h.bucket("c5").Remaining; got != 0 {
		t.Fatalf("superseded timer refilled bucket: remaining = %d", got)
	}

	h.clock.Advance(2 * time.Second)
	h.settle()
	time.Sleep(10 * time.Millisecond)
	h.settle()
	if got := h.bucket("c5").Remaining; got != 0 {
		t.Fatalf("stopped timer refilled bucket: remaining = %d", got)
	}

	h.clock.Advance(4 * time.Second)
	h.waitFor("bucket reset", func() bool { return h.bucket("c5").Remaining == 5 })
}

// TestScheduler_GatewayBucketDoesNotBlock verifies the gateway bucket is
// left out of the scarcity check for uncategorized calls.
func TestScheduler_GatewayBucketDoesNotBlock(t *testing.T) {
	h := newHarness(t, 5)

	h.submit("GET", route.GatewayPath)
	h.write(0)
	if err := h.reply(0, limitHeaders("gateway", 2, 0, time.Hour)); err != nil {
		t.Fatal(err)
	}

	h.submit("GET", "/users/1/profile")
	if got := len(h.sender.sends); got != 2 {
		t.Fatalf("exhausted gateway bucket blocked an unrelated call: %d sends", got)
	}

	// Gateway calls themselves still respect their own bucket.
	h.write(1)
	h.submit("GET", route.GatewayPath)
	if got := len(h.sender.sends); got != 2 {
		t.Fatalf("call dispatched into exhausted gateway bucket")
	}
}

// TestScheduler_GatewayUnmapped verifies the gateway reservation only
// applies once the gateway route has a bucket.
func TestScheduler_GatewayUnmapped(t *testing.T) {
	h := newHarness(t, 5)

	if got := h.s.reg.ownerOf(h.s.gateway); got != -1 {
		t.Fatalf("ownerOf(gateway) = %d, want -1", got)
	}

	h.submit("GET", "/channels/1/messages")
	h.write(0)
	if err := h.reply(0, limitHeaders("X", 5, 0, time.Hour)); err != nil {
		t.Fatal(err)
	}

	h.submit("GET", route.GatewayPath)
	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("unclassified gateway call bypassed an exhausted bucket")
	}
}

// TestScheduler_OlderUncategorizedWins verifies cross-scope ordering picks
// the globally oldest eligible call.
func TestScheduler_OlderUncategorizedWins(t *testing.T) {
	h := newHarness(t, 5)

	h.submit("GET", "/channels/1/messages")
	h.write(0)
	if err := h.reply(0, limitHeaders("X", 5, 5, time.Hour)); err != nil {
		t.Fatal(err)
	}

	// Queue an uncategorized call first, then a bucketed one, without
	// letting a pass run in between.
	h.s.writing = true
	h.s.Submit(&transport.Request{Method: "GET", Target: "/users/1/profile"}, nil, nil)
	h.s.Submit(&transport.Request{Method: "GET", Target: "/channels/1/messages"}, nil, nil)
	h.settle()
	h.s.writing = false
	h.s.runPass()
	h.settle()

	if got := h.sender.sends[1].req.Target; got != "/users/1/profile" {
		t.Errorf("dispatched %s first, want the older uncategorized call", got)
	}
	h.write(1)
	if got := h.sender.sends[2].req.Target; got != "/channels/1/messages" {
		t.Errorf("dispatched %s second, want the bucketed call", got)
	}
}

// TestScheduler_ReplyVariants covers replies that must not touch buckets.
func TestScheduler_ReplyVariants(t *testing.T) {
	malformed := limitHeaders("X", 5, 4, time.Second)
	malformed.Set(transport.HeaderRemaining, "lots")

	tests := []struct {
		name    string
		reply   *transport.Reply
		wantErr bool
	}{
		{
			name:  "no bucket header",
			reply: &transport.Reply{Status: http.StatusOK, Header: http.Header{}},
		},
		{
			name:  "transport failure",
			reply: &transport.Reply{Err: errors.New("connection reset")},
		},
		{
			name:    "malformed remaining",
			reply:   &transport.Reply{Status: http.StatusOK, Header: malformed},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 5)

			var got *transport.Reply
			h.s.Submit(&transport.Request{Method: "GET", Target: "/channels/1/messages"}, nil,
				func(r *transport.Reply) error {
					got = r
					return nil
				})
			h.settle()
			h.write(0)

			err := h.sender.sends[0].onRead(tt.reply)
			h.settle()

			if (err != nil) != tt.wantErr {
				t.Errorf("read hook error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.reply {
				t.Errorf("user read hook not invoked with the reply")
			}
			if len(h.s.reg.buckets) != 0 {
				t.Errorf("bucket created from %s", tt.name)
			}
			if h.s.reg.uncategorized.inFlight.Total() != 0 {
				t.Errorf("in-flight slot not released")
			}
		})
	}
}

// TestScheduler_OverdrawnBucket verifies a reply reporting fewer remaining
// calls than are in flight leaves the bucket exhausted, not inconsistent.
func TestScheduler_OverdrawnBucket(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/8/messages"

	for i := 0; i < 3; i++ {
		h.submit("POST", target)
		h.write(i)
	}
	if err := h.reply(0, limitHeaders("c8", 5, 0, time.Second)); err != nil {
		t.Fatal(err)
	}

	b := h.bucket("c8")
	if b.Remaining != 2 || b.inFlight.Total() != 2 {
		t.Fatalf("remaining=%d in_flight=%d, want 2/2", b.Remaining, b.inFlight.Total())
	}

	h.submit("POST", target)
	if got := len(h.sender.sends); got != 3 {
		t.Errorf("call dispatched into an overdrawn bucket")
	}
}

// TestScheduler_ReplyBeforeWrite verifies a reply that lowers a bucket
// while another of its calls is still being written leaves the bucket
// exhausted instead of overdrawn.
func TestScheduler_ReplyBeforeWrite(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/9/messages"

	h.submit("POST", target)
	h.write(0)
	if err := h.reply(0, limitHeaders("c9", 5, 2, time.Second)); err != nil {
		t.Fatal(err)
	}

	h.submit("POST", target)
	h.write(1)
	h.submit("POST", target)
	if got := len(h.sender.sends); got != 3 {
		t.Fatalf("sends = %d, want 3", got)
	}

	// Call 1 replies while call 2 is dispatched but not yet written.
	if err := h.reply(1, limitHeaders("c9", 5, 0, time.Second)); err != nil {
		t.Fatal(err)
	}
	h.write(2)

	b := h.bucket("c9")
	if b.Remaining != 1 || b.inFlight.Total() != 1 {
		t.Fatalf("remaining=%d in_flight=%d, want 1/1", b.Remaining, b.inFlight.Total())
	}

	h.submit("POST", target)
	if got := len(h.sender.sends); got != 3 {
		t.Errorf("call dispatched into an exhausted bucket")
	}
}

// TestScheduler_WarmMovesInFlight verifies warming a route whose calls are
// already in flight keeps the warmed bucket consistent.
func TestScheduler_WarmMovesInFlight(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/4/messages"

	for i := 0; i < 3; i++ {
		h.submit("POST", target)
		h.write(i)
	}

	h.s.Warm([]Assignment{{Route: route.Classify(target), Bucket: "c4", Limit: 5}})
	h.settle()

	b := h.bucket("c4")
	if b.Remaining != 3 || b.inFlight.Total() != 3 {
		t.Fatalf("remaining=%d in_flight=%d, want 3/3", b.Remaining, b.inFlight.Total())
	}

	h.submit("POST", target)
	if got := len(h.sender.sends); got != 3 {
		t.Errorf("call dispatched into a warmed bucket with no capacity")
	}
}

// TestScheduler_Hooks verifies user hooks fire once each.
func TestScheduler_Hooks(t *testing.T) {
	h := newHarness(t, 5)

	var writes, reads int
	h.s.Submit(&transport.Request{Method: "GET", Target: "/users/@me"},
		func() { writes++ },
		func(*transport.Reply) error { reads++; return errors.New("ignored") },
	)
	h.settle()
	h.write(0)
	if err := h.reply(0, limitHeaders("me", 5, 4, time.Second)); err != nil {
		t.Fatal(err)
	}

	if writes != 1 || reads != 1 {
		t.Errorf("writes=%d reads=%d, want 1/1", writes, reads)
	}
}

// TestScheduler_Warm verifies preloaded assignments route calls into their
// bucket and admit a single probe call.
func TestScheduler_Warm(t *testing.T) {
	h := newHarness(t, 5)
	const target = "/channels/2/messages"
	k := route.Classify(target)

	h.s.Warm([]Assignment{
		{Route: k, Bucket: "c2", Limit: 5},
		{Route: route.Classify("/ignored"), Bucket: "", Limit: 5},
	})
	h.settle()

	b := h.bucket("c2")
	if b.Remaining != 1 || b.Limit != 5 {
		t.Fatalf("warmed bucket remaining=%d limit=%d, want 1/5", b.Remaining, b.Limit)
	}

	h.submit("POST", target)
	h.write(0)
	h.submit("POST", target)
	if got := len(h.sender.sends); got != 1 {
		t.Fatalf("expected only the probe call dispatched, got %d", got)
	}

	got := h.s.assignments()
	if len(got) != 1 || got[0].Bucket != "c2" || got[0].Route != k {
		t.Errorf("assignments = %+v", got)
	}
}

// TestScheduler_Run exercises the event loop with a sender that completes
// on its own goroutines.
func TestScheduler_Run(t *testing.T) {
	var mu sync.Mutex
	served := 0
	sender := transport.SenderFunc(func(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
		go func() {
			onWrite()
			mu.Lock()
			served++
			n := served
			mu.Unlock()
			_ = onRead(&transport.Reply{
				Status: http.StatusOK,
				Header: limitHeaders("run", 100, 100-n, time.Minute),
			})
		}()
	})

	s := New(sender, Config{})
	if _, err := s.Stats(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stats before Run = %v, want ErrNotRunning", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	const total = 25
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		s.Submit(&transport.Request{Method: "GET", Target: "/channels/1/messages"}, nil,
			func(*transport.Reply) error {
				wg.Done()
				return nil
			})
	}

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for replies")
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Queued() != 0 || st.InFlight() != 0 {
		t.Errorf("queued=%d in_flight=%d after all replies", st.Queued(), st.InFlight())
	}
	if len(st.Buckets) != 1 || st.Buckets[0].ID != "run" || st.Buckets[0].Routes != 1 {
		t.Errorf("unexpected buckets %+v", st.Buckets)
	}

	if err := s.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
