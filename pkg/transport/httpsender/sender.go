package httpsender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/pacer/pkg/transport"
)

// ErrClosed is reported through Reply.Err for sends after Close.
var ErrClosed = errors.New("httpsender: sender closed")

// Config configures a Sender.
type Config struct {
	// BaseURL is prepended to every request target.
	BaseURL string

	// Token is sent verbatim as the Authorization header when set,
	// e.g. "Bot abc123".
	Token string

	// UserAgent is sent as the User-Agent header when set.
	UserAgent string

	// Timeout bounds a whole request, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// MaxIdleConns caps pooled connections. Default: 100
	MaxIdleConns int

	// GlobalRate limits requests per second across all routes.
	// Zero disables the limiter.
	GlobalRate float64

	// GlobalBurst is the limiter burst. Default: 1
	GlobalBurst int

	// Observer, when set, is told about every completed request.
	Observer Observer
}

// Observer records the outcome of requests. Status is zero when err is
// set.
type Observer interface {
	ObserveRequest(method string, status int, elapsed time.Duration, err error)
}

// Sender performs transport requests over HTTP. Each Send runs on its own
// goroutine; the hooks fire from that goroutine.
type Sender struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an HTTP sender with connection pooling.
func New(cfg Config, logger *slog.Logger) (*Sender, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("httpsender: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.GlobalBurst <= 0 {
		cfg.GlobalBurst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	tr := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	var limiter *rate.Limiter
	if cfg.GlobalRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		cfg: cfg,
		client: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
		},
		limiter: limiter,
		logger:  logger.With("component", "transport.http"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Send starts req and returns immediately.
func (s *Sender) Send(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.do(req, onWrite, onRead)
	}()
}

func (s *Sender) do(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	var once sync.Once
	written := func() {
		once.Do(func() {
			if onWrite != nil {
				onWrite()
			}
		})
	}

	start := time.Now()
	reply := s.roundTrip(req, written)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveRequest(req.Method, reply.Status, time.Since(start), reply.Err)
	}

	// A request that failed before reaching the wire still counts as
	// written so the caller's write accounting stays balanced.
	written()

	if reply.Err != nil {
		s.logger.Warn("request failed",
			"method", req.Method,
			"target", req.Target,
			"error", reply.Err,
		)
	}

	if onRead == nil {
		return
	}
	if err := onRead(reply); err != nil {
		s.logger.Warn("read hook rejected reply",
			"method", req.Method,
			"target", req.Target,
			"status", reply.Status,
			"error", err,
		)
	}
}

func (s *Sender) roundTrip(req *transport.Request, written func()) *transport.Reply {
	if err := s.ctx.Err(); err != nil {
		return &transport.Reply{Err: ErrClosed}
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return &transport.Reply{Err: fmt.Errorf("waiting for global limiter: %w", err)}
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				written()
			}
		},
	}
	ctx := httptrace.WithClientTrace(s.ctx, trace)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, s.url(req.Target), body)
	if err != nil {
		return &transport.Reply{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if s.cfg.Token != "" {
		httpReq.Header.Set("Authorization", s.cfg.Token)
	}
	if s.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	s.logger.Debug("sending request", "method", req.Method, "target", req.Target)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &transport.Reply{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transport.Reply{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	s.logger.Debug("received reply",
		"method", req.Method,
		"target", req.Target,
		"status", resp.StatusCode,
	)
	return &transport.Reply{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}
}

func (s *Sender) url(target string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
}

// Close cancels outstanding requests, waits for their hooks to return and
// releases pooled connections.
func (s *Sender) Close() error {
	s.cancel()
	s.wg.Wait()
	s.client.CloseIdleConnections()
	s.logger.Info("sender closed")
	return nil
}
