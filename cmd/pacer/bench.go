package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pacer/internal/simserver"
	"mercator-hq/pacer/pkg/cli"
	"mercator-hq/pacer/pkg/limits"
	"mercator-hq/pacer/pkg/telemetry/logging"
	"mercator-hq/pacer/pkg/transport"
	"mercator-hq/pacer/pkg/transport/httpsender"
)

var benchFlags struct {
	calls        int
	routes       int
	limit        int
	window       time.Duration
	latency      time.Duration
	defaultLimit int
	timeout      time.Duration
	format       string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure scheduling against a simulated rate-limited API",
	Long: `Send a burst of calls through the scheduler to a local server that
enforces fixed-window buckets, then report throughput, latency and how many
calls the server had to reject.

A healthy run reports zero violations: every call waited for room in its
bucket instead of being rejected.

Examples:
  # 100 calls spread over 4 channels
  pacer bench --calls 100 --routes 4

  # Tight buckets with slow replies
  pacer bench --limit 2 --window 500ms --latency 50ms --format json`,
	RunE: runBenchCmd,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVar(&benchFlags.calls, "calls", 50, "number of calls to send")
	benchCmd.Flags().IntVar(&benchFlags.routes, "routes", 3, "number of distinct channels to spread calls over")
	benchCmd.Flags().IntVar(&benchFlags.limit, "limit", 5, "calls each simulated bucket allows per window")
	benchCmd.Flags().DurationVar(&benchFlags.window, "window", time.Second, "simulated bucket window")
	benchCmd.Flags().DurationVar(&benchFlags.latency, "latency", 10*time.Millisecond, "simulated reply latency")
	benchCmd.Flags().IntVar(&benchFlags.defaultLimit, "default-limit", 0, "assumed size of unknown buckets (0 uses --limit)")
	benchCmd.Flags().DurationVar(&benchFlags.timeout, "timeout", 2*time.Minute, "give up after this long")
	benchCmd.Flags().StringVar(&benchFlags.format, "format", "text", "output format: text, json")
}

type benchOptions struct {
	Calls        int
	Routes       int
	Limit        int
	Window       time.Duration
	Latency      time.Duration
	DefaultLimit int
}

type latencySummary struct {
	MinMS float64 `json:"min_ms"`
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
	MaxMS float64 `json:"max_ms"`
}

type benchResult struct {
	Calls      int            `json:"calls"`
	Completed  int            `json:"completed"`
	Errors     int            `json:"errors"`
	Duration   time.Duration  `json:"duration_ns"`
	Throughput float64        `json:"throughput"`
	Latency    latencySummary `json:"latency"`
	Statuses   map[int]int    `json:"statuses"`
	Served     int            `json:"served"`
	Violations int            `json:"violations"`
	Buckets    int            `json:"buckets"`
}

func runBenchCmd(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(benchFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewCommandError("bench", errors.New("csv output is not supported"))
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, benchFlags.timeout)
	defer cancel()

	progress := cli.NewProgressReporter(cmd.ErrOrStderr())
	result, err := runBench(ctx, benchOptions{
		Calls:        benchFlags.calls,
		Routes:       benchFlags.routes,
		Limit:        benchFlags.limit,
		Window:       benchFlags.window,
		Latency:      benchFlags.latency,
		DefaultLimit: benchFlags.defaultLimit,
	}, progress)
	if result != nil {
		if format == cli.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(result); encErr != nil {
				return encErr
			}
		} else {
			printBench(cmd.OutOrStdout(), result)
		}
	}
	if err != nil {
		return cli.NewCommandError("bench", err)
	}
	return nil
}

// runBench sends opts.Calls calls through a fresh scheduler to a simulated
// server and collects the outcome. On ctx expiry the partial result is
// returned along with the error.
func runBench(ctx context.Context, opts benchOptions, progress cli.ProgressReporter) (*benchResult, error) {
	if opts.Calls <= 0 {
		return nil, errors.New("calls must be positive")
	}
	if opts.Routes <= 0 {
		opts.Routes = 1
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = opts.Limit
	}

	sim := simserver.New(simserver.Config{
		Limit:   opts.Limit,
		Window:  opts.Window,
		Latency: opts.Latency,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	httpSrv := &http.Server{Handler: sim, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = httpSrv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger := logging.Discard()
	sender, err := httpsender.New(httpsender.Config{
		BaseURL:   "http://" + ln.Addr().String(),
		UserAgent: "pacer-bench/" + Version,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer sender.Close()

	manager, err := limits.NewManager(sender, limits.Config{
		DefaultLimit: opts.DefaultLimit,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	defer manager.Close()

	runCtx, stopManager := context.WithCancel(context.Background())
	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(runCtx) }()
	defer func() {
		stopManager()
		<-managerDone
	}()

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.Calls)
		statuses  = make(map[int]int)
		failures  int
		wg        sync.WaitGroup
	)

	if progress != nil {
		progress.Start(int64(opts.Calls))
	}
	start := time.Now()
	wg.Add(opts.Calls)
	for i := 0; i < opts.Calls; i++ {
		req := &transport.Request{
			Method: http.MethodPost,
			Target: "/channels/" + strconv.Itoa(i%opts.Routes+1) + "/messages",
		}
		sent := time.Now()
		manager.Send(req, nil, func(reply *transport.Reply) error {
			defer wg.Done()
			mu.Lock()
			latencies = append(latencies, time.Since(sent))
			if reply.Err != nil {
				failures++
			} else {
				statuses[reply.Status]++
			}
			mu.Unlock()
			if progress != nil {
				progress.Add(1)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	elapsed := time.Since(start)
	if progress != nil {
		progress.Finish()
	}

	mu.Lock()
	defer mu.Unlock()
	stats := sim.Stats()
	result := &benchResult{
		Calls:      opts.Calls,
		Completed:  len(latencies),
		Errors:     failures,
		Duration:   elapsed,
		Latency:    summarizeLatencies(latencies),
		Statuses:   maps.Clone(statuses),
		Served:     stats.Served,
		Violations: stats.Violations,
		Buckets:    stats.Buckets,
	}
	if s := elapsed.Seconds(); s > 0 {
		result.Throughput = float64(result.Completed) / s
	}
	return result, waitErr
}

func summarizeLatencies(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	at := func(q float64) float64 {
		i := int(float64(len(sorted)-1) * q)
		return ms(sorted[i])
	}
	return latencySummary{
		MinMS: ms(sorted[0]),
		P50MS: at(0.50),
		P95MS: at(0.95),
		P99MS: at(0.99),
		MaxMS: ms(sorted[len(sorted)-1]),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func printBench(w io.Writer, r *benchResult) {
	fmt.Fprintln(w, "Pacer Benchmark")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Calls:       %d sent, %d completed, %d errors\n", r.Calls, r.Completed, r.Errors)
	fmt.Fprintf(w, "Duration:    %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(w, "Throughput:  %.2f calls/s\n", r.Throughput)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  Min:  %.1fms\n", r.Latency.MinMS)
	fmt.Fprintf(w, "  p50:  %.1fms\n", r.Latency.P50MS)
	fmt.Fprintf(w, "  p95:  %.1fms\n", r.Latency.P95MS)
	fmt.Fprintf(w, "  p99:  %.1fms\n", r.Latency.P99MS)
	fmt.Fprintf(w, "  Max:  %.1fms\n", r.Latency.MaxMS)

	codes := make([]int, 0, len(r.Statuses))
	for code := range r.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Status Codes:")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d:  %d\n", code, r.Statuses[code])
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server:      %d served, %d buckets\n", r.Served, r.Buckets)
	if r.Violations == 0 {
		fmt.Fprintln(w, "✓ No rate limit violations")
	} else {
		fmt.Fprintf(w, "✗ %d rate limit violations\n", r.Violations)
	}
}
