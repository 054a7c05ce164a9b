package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/pacer/pkg/telemetry/logging"
	"mercator-hq/pacer/pkg/transport"
)

// maxLineSize bounds one input line, including the request body.
const maxLineSize = 8 << 20

// callInput is one line of `pacer run` input.
type callInput struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Target string          `json:"target"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// callOutput is one line of `pacer run` output.
type callOutput struct {
	ID        string          `json:"id"`
	Status    int             `json:"status,omitempty"`
	Bucket    string          `json:"bucket,omitempty"`
	Remaining *int            `json:"remaining,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Error     string          `json:"error,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// pumpResult counts the lines a pump handled.
type pumpResult struct {
	Submitted int `json:"submitted"`
	Replied   int `json:"replied"`
	Failed    int `json:"failed"`
	Invalid   int `json:"invalid"`
}

// pump submits every call read from in through sender and writes one
// output line per reply. It returns once every submitted call has been
// answered or ctx is cancelled.
type pump struct {
	sender transport.Sender
	logger *slog.Logger

	mu     sync.Mutex
	enc    *json.Encoder
	result pumpResult
	wg     sync.WaitGroup
}

func newPump(sender transport.Sender, out io.Writer, logger *slog.Logger) *pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &pump{
		sender: sender,
		logger: logger.With("component", "pump"),
		enc:    json.NewEncoder(out),
	}
}

func (p *pump) run(ctx context.Context, in io.Reader) (pumpResult, error) {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64<<10), maxLineSize)
		for sc.Scan() {
			line := bytes.Clone(sc.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for reading := true; reading; {
		select {
		case <-ctx.Done():
			return p.snapshot(), ctx.Err()
		case line, ok := <-lines:
			if !ok {
				reading = false
				break
			}
			p.handle(ctx, line)
		}
	}

	var err error
	select {
	case err = <-readErr:
	default:
	}
	if err != nil {
		err = fmt.Errorf("failed to read input: %w", err)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return p.snapshot(), err
	case <-ctx.Done():
		return p.snapshot(), errors.Join(err, ctx.Err())
	}
}

func (p *pump) handle(ctx context.Context, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return
	}

	var in callInput
	if err := json.Unmarshal(line, &in); err != nil {
		p.invalid(in.ID, fmt.Errorf("invalid input: %w", err))
		return
	}
	if in.Method == "" || in.Target == "" {
		p.invalid(in.ID, errors.New("invalid input: method and target are required"))
		return
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	req := &transport.Request{Method: in.Method, Target: in.Target}
	if len(in.Body) > 0 && !bytes.Equal(in.Body, []byte("null")) {
		req.Body = in.Body
	}

	callCtx := logging.WithRoute(logging.WithCallID(ctx, in.ID), in.Target)
	start := time.Now()

	p.mu.Lock()
	p.result.Submitted++
	p.mu.Unlock()
	p.wg.Add(1)

	p.sender.Send(req, func() {
		p.logger.DebugContext(callCtx, "call written", "queued_ms", time.Since(start).Milliseconds())
	}, func(reply *transport.Reply) error {
		defer p.wg.Done()
		p.reply(callCtx, in.ID, start, reply)
		return nil
	})
}

func (p *pump) reply(ctx context.Context, id string, start time.Time, reply *transport.Reply) {
	out := callOutput{ID: id, ElapsedMS: time.Since(start).Milliseconds()}
	if reply.Err != nil {
		out.Error = reply.Err.Error()
	} else {
		out.Status = reply.Status
		out.Body = encodeBody(reply.Body)
		if rl, ok, _ := transport.ParseRateLimit(reply.Header); ok {
			out.Bucket = rl.Bucket
			out.Remaining = &rl.Remaining
		}
	}

	p.logger.DebugContext(ctx, "call replied", "status", out.Status, "elapsed_ms", out.ElapsedMS)

	p.mu.Lock()
	defer p.mu.Unlock()
	if reply.Err != nil {
		p.result.Failed++
	} else {
		p.result.Replied++
	}
	if err := p.enc.Encode(out); err != nil {
		p.logger.ErrorContext(ctx, "failed to write output", "error", err)
	}
}

func (p *pump) invalid(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Invalid++
	if encErr := p.enc.Encode(callOutput{ID: id, Error: err.Error()}); encErr != nil {
		p.logger.Error("failed to write output", "error", encErr)
	}
}

func (p *pump) snapshot() pumpResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// encodeBody embeds JSON bodies as-is and anything else as a string.
func encodeBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
