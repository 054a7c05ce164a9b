package httpsender

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mercator-hq/pacer/pkg/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// result collects hook invocations for one Send.
type result struct {
	mu     sync.Mutex
	events []string
	reply  *transport.Reply
	done   chan struct{}
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

func (r *result) onWrite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "write")
}

func (r *result) onRead(reply *transport.Reply) error {
	r.mu.Lock()
	r.events = append(r.events, "read")
	r.reply = reply
	r.mu.Unlock()
	close(r.done)
	return nil
}

func (r *result) wait(t *testing.T) *transport.Reply {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) != 2 || r.events[0] != "write" || r.events[1] != "read" {
		t.Fatalf("hook order = %v, want [write read]", r.events)
	}
	return r.reply
}

func TestSender_Success(t *testing.T) {
	type seen struct {
		auth, agent, ctype, path, method, body string
	}
	requests := make(chan seen, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requests <- seen{
			auth:   r.Header.Get("Authorization"),
			agent:  r.Header.Get("User-Agent"),
			ctype:  r.Header.Get("Content-Type"),
			path:   r.URL.RequestURI(),
			method: r.Method,
			body:   string(b),
		}

		w.Header().Set(transport.HeaderBucket, "abc")
		w.Header().Set(transport.HeaderLimit, "5")
		w.Header().Set(transport.HeaderRemaining, "4")
		w.Header().Set(transport.HeaderResetAfter, "1.5")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	s, err := New(Config{
		BaseURL:   server.URL + "/api/v10/",
		Token:     "Bot secret",
		UserAgent: "pacer-test",
		Timeout:   5 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	r := newResult()
	s.Send(&transport.Request{
		Method: http.MethodPost,
		Target: "/channels/1/messages?wait=true",
		Body:   []byte(`{"content":"hi"}`),
	}, r.onWrite, r.onRead)
	reply := r.wait(t)

	if reply.Err != nil {
		t.Fatalf("unexpected error: %v", reply.Err)
	}
	if reply.Status != http.StatusCreated {
		t.Errorf("status = %d, want 201", reply.Status)
	}
	if string(reply.Body) != `{"id":"1"}` {
		t.Errorf("body = %q", reply.Body)
	}

	rl, ok, err := transport.ParseRateLimit(reply.Header)
	if err != nil || !ok {
		t.Fatalf("ParseRateLimit: ok=%v err=%v", ok, err)
	}
	if rl.Bucket != "abc" || rl.Remaining != 4 || rl.ResetAfter != 1500*time.Millisecond {
		t.Errorf("unexpected rate limit %+v", rl)
	}

	got := <-requests
	if got.auth != "Bot secret" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.agent != "pacer-test" {
		t.Errorf("User-Agent = %q", got.agent)
	}
	if got.ctype != "application/json" {
		t.Errorf("Content-Type = %q", got.ctype)
	}
	if got.method != http.MethodPost {
		t.Errorf("method = %q", got.method)
	}
	if got.path != "/api/v10/channels/1/messages?wait=true" {
		t.Errorf("path = %q", got.path)
	}
	if got.body != `{"content":"hi"}` {
		t.Errorf("request body = %q", got.body)
	}
}

func TestSender_NonSuccessStatusIsAReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s, err := New(Config{BaseURL: server.URL}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	r := newResult()
	s.Send(&transport.Request{Method: http.MethodGet, Target: "/users/@me"}, r.onWrite, r.onRead)
	reply := r.wait(t)

	if reply.Err != nil {
		t.Errorf("status errors must not be transport errors: %v", reply.Err)
	}
	if reply.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", reply.Status)
	}
}

func TestSender_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	s, err := New(Config{BaseURL: url, Timeout: time.Second}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	r := newResult()
	s.Send(&transport.Request{Method: http.MethodGet, Target: "/gateway/bot"}, r.onWrite, r.onRead)
	reply := r.wait(t)

	if reply.Err == nil {
		t.Fatal("expected transport error")
	}
	if reply.Status != 0 || reply.Header != nil {
		t.Errorf("failed reply carries status %d header %v", reply.Status, reply.Header)
	}
}

func TestSender_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	s, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	r := newResult()
	s.Send(&transport.Request{Method: http.MethodGet, Target: "/slow"}, r.onWrite, r.onRead)
	if reply := r.wait(t); reply.Err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSender_NilHooks(t *testing.T) {
	hit := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
	}))
	defer server.Close()

	s, err := New(Config{BaseURL: server.URL}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	s.Send(&transport.Request{Method: http.MethodGet, Target: "/"}, nil, nil)
	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("request never arrived")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSender_SendAfterClose(t *testing.T) {
	s, err := New(Config{BaseURL: "http://127.0.0.1:1"}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	r := newResult()
	s.Send(&transport.Request{Method: http.MethodGet, Target: "/"}, r.onWrite, r.onRead)
	if reply := r.wait(t); !errors.Is(reply.Err, ErrClosed) {
		t.Errorf("Err = %v, want ErrClosed", reply.Err)
	}
}

func TestSender_GlobalRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s, err := New(Config{BaseURL: server.URL, GlobalRate: 20, GlobalBurst: 1}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const n = 5
	start := time.Now()
	results := make([]*result, n)
	for i := range results {
		results[i] = newResult()
		s.Send(&transport.Request{Method: http.MethodGet, Target: "/"}, results[i].onWrite, results[i].onRead)
	}
	for _, r := range results {
		r.wait(t)
	}

	// Burst of one at 20/s: the last request waits at least 4 intervals.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("5 requests finished in %v, limiter not applied", elapsed)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error for empty base URL")
	}
}

type observation struct {
	method string
	status int
	err    error
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (o *recordingObserver) ObserveRequest(method string, status int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{method, status, err})
}

func TestSender_Observer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	s, err := New(Config{BaseURL: server.URL, Observer: obs}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	r := newResult()
	s.Send(&transport.Request{Method: http.MethodDelete, Target: "/channels/1/messages/2"}, r.onWrite, r.onRead)
	r.wait(t)
	_ = s.Close()

	r = newResult()
	s.Send(&transport.Request{Method: http.MethodGet, Target: "/"}, r.onWrite, r.onRead)
	r.wait(t)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.obs) != 2 {
		t.Fatalf("observations = %v, want 2", obs.obs)
	}
	if got := obs.obs[0]; got.method != http.MethodDelete || got.status != http.StatusNoContent || got.err != nil {
		t.Errorf("first observation = %+v", got)
	}
	if got := obs.obs[1]; !errors.Is(got.err, ErrClosed) || got.status != 0 {
		t.Errorf("second observation = %+v", got)
	}
}
