package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pacer/pkg/cli"
	"mercator-hq/pacer/pkg/config"
	"mercator-hq/pacer/pkg/limits"
	"mercator-hq/pacer/pkg/limits/storage"
	"mercator-hq/pacer/pkg/telemetry/health"
	"mercator-hq/pacer/pkg/telemetry/logging"
	"mercator-hq/pacer/pkg/telemetry/metrics"
	"mercator-hq/pacer/pkg/telemetry/tracing"
	"mercator-hq/pacer/pkg/transport"
	"mercator-hq/pacer/pkg/transport/httpsender"
)

var runFlags struct {
	input    string
	output   string
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send calls read from input while respecting rate limits",
	Long: `Send API calls read as JSON lines and write one JSON line per reply.

Each input line describes one call:

  {"id": "greet", "method": "POST", "target": "/channels/1/messages", "body": {"content": "hi"}}

The id is optional; a random one is assigned when missing. Each output line
carries the id, the reply status, the rate limit bucket and the reply body.
The command exits once every call has been answered, or on SIGINT/SIGTERM.

Learned bucket assignments are saved on the configured schedule and on exit.

Examples:
  # Send calls from a file
  pacer run --config pacer.yaml --input calls.jsonl

  # Stream calls from another program
  producer | pacer run -c pacer.yaml > replies.jsonl

  # Validate config without sending anything
  pacer run --dry-run`,
	RunE: runPacer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.input, "input", "i", "-", "input file of JSON lines (- for stdin)")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "-", "output file of JSON lines (- for stdout)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without sending")
}

func runPacer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.Logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.ErrOrStderr(), "✓ Configuration valid")
		return nil
	}

	in, closeIn, err := openInput(runFlags.input)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer closeIn()
	out, closeOut, err := openOutput(runFlags.output)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer closeOut()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	result, err := serve(ctx, cfg, logger, in, out)
	logger.Info("run finished",
		"submitted", result.Submitted,
		"replied", result.Replied,
		"failed", result.Failed,
		"invalid", result.Invalid,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// serve wires the sending stack for cfg, pumps calls from in to out and
// tears everything down in reverse order.
func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger, in io.Reader, out io.Writer) (pumpResult, error) {
	collector := metrics.NewCollector(Version)

	tracer, err := tracing.New(tracing.Config{
		Enabled:        cfg.Telemetry.Tracing.Enabled,
		Endpoint:       cfg.Telemetry.Tracing.Endpoint,
		Insecure:       cfg.Telemetry.Tracing.Insecure,
		Sampler:        cfg.Telemetry.Tracing.Sampler,
		SampleRatio:    cfg.Telemetry.Tracing.SampleRatio,
		ServiceName:    cfg.Telemetry.Tracing.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return pumpResult{}, fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	senderCfg := httpsender.Config{
		BaseURL:      cfg.Transport.BaseURL,
		Token:        cfg.Transport.Token,
		UserAgent:    cfg.Transport.UserAgent,
		Timeout:      cfg.Transport.Timeout,
		MaxIdleConns: cfg.Transport.MaxIdleConns,
		GlobalRate:   cfg.Transport.GlobalRate,
		GlobalBurst:  cfg.Transport.GlobalBurst,
	}
	if cfg.Telemetry.Metrics.Enabled {
		senderCfg.Observer = collector.Transport()
	}
	sender, err := httpsender.New(senderCfg, logger.Logger)
	if err != nil {
		return pumpResult{}, err
	}
	defer sender.Close()

	backend, err := openStorage(cfg.Storage)
	if err != nil {
		return pumpResult{}, err
	}

	limitsCfg := limits.Config{
		DefaultLimit:     cfg.Limits.DefaultLimit,
		MajorParameters:  cfg.Limits.MajorParameters,
		GatewayPath:      cfg.Limits.GatewayPath,
		Storage:          backend,
		SnapshotSchedule: cfg.Storage.SnapshotSchedule,
		Retention:        cfg.Storage.Retention,
		Logger:           logger.Logger,
	}
	if cfg.Telemetry.Metrics.Enabled {
		limitsCfg.Registerer = collector.Registerer()
	}
	manager, err := limits.NewManager(sender, limitsCfg)
	if err != nil {
		_ = backend.Close()
		return pumpResult{}, err
	}
	defer manager.Close()

	var front transport.Sender = manager
	if tracer.Enabled() {
		front = tracing.NewSender(manager, tracer, manager.Classifier())
	}

	runCtx, stopManager := context.WithCancel(context.Background())
	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(runCtx) }()
	defer func() {
		stopManager()
		if err := <-managerDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped with error", "error", err)
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		srv := metrics.NewServer(collector, cfg.Telemetry.Metrics.Listen, cfg.Telemetry.Metrics.Path, logger.Logger)
		newHealthChecker(manager, backend).Mount(srv.Mux())
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if path := config.Path(); path != "" {
		watchConfig(ctx, path, logger)
	}

	return newPump(front, out, logger.Logger).run(ctx, in)
}

func newHealthChecker(manager *limits.Manager, backend storage.Backend) *health.Checker {
	checker := health.New(2 * time.Second)
	checker.RegisterCheck("scheduler", func(ctx context.Context) (string, error) {
		st, err := manager.Stats(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d buckets, %d queued, %d in flight", len(st.Buckets), st.Queued(), st.InFlight()), nil
	})
	checker.RegisterCheck("storage", func(ctx context.Context) (string, error) {
		_, err := backend.Load(ctx, 0)
		return "", err
	})
	return checker
}

// watchConfig applies log level changes from the config file while
// running. Other settings need a restart.
func watchConfig(ctx context.Context, path string, logger *logging.Logger) {
	watcher, err := config.NewWatcher(path, logger.Logger)
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
		return
	}
	go func() {
		err := watcher.Watch(ctx, func(c *config.Config) {
			level := c.Telemetry.Logging.Level
			if runFlags.logLevel != "" || verbose {
				return
			}
			if err := logger.SetLevel(level); err != nil {
				logger.Warn("ignoring log level from reloaded config", "level", level, "error", err)
				return
			}
			logger.Info("log level updated", "level", level)
		})
		if err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" || path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
