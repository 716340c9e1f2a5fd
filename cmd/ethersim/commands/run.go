package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/ethersim/internal/config"
	"github.com/dantte-lp/ethersim/internal/desim"
	"github.com/dantte-lp/ethersim/internal/simcontext"
	"github.com/dantte-lp/ethersim/internal/simmetrics"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to
// drain in-flight scrapes once the scenario finishes running.
const shutdownTimeout = 5 * time.Second

// traceOutPath is the --trace-out flag: "-" (default) streams to stdout,
// any other value is treated as a file path to create/truncate.
var traceOutPath string

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion, streaming its trace and serving Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScenario(configPath, traceOutPath)
		},
	}
	cmd.Flags().StringVar(&traceOutPath, "trace-out", "-", "trace output destination; \"-\" for stdout")
	return cmd
}

func runScenario(cfgPath, traceOut string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	logger.Info("ethersim starting",
		slog.Int("nodes", len(cfg.Scenario.Nodes)),
		slog.Int("sends", len(cfg.Scenario.Sends)),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	sink, closeSink, err := openTraceSink(traceOut)
	if err != nil {
		return fmt.Errorf("open trace sink: %w", err)
	}
	defer closeSink()

	reg := prometheus.NewRegistry()
	collector := simmetrics.NewCollector(reg)

	sc, err := simcontext.New(cfg, sink, collector, logger)
	if err != nil {
		return fmt.Errorf("build simulation context: %w", err)
	}

	if err := sc.ScheduleSends(cfg.Scenario.Sends); err != nil {
		return fmt.Errorf("schedule sends: %w", err)
	}

	return runServers(cfg, sc, reg, collector, logger)
}

// runServers starts the metrics HTTP listener and the scheduler's run loop
// concurrently via errgroup, mirroring the teacher's cmd/gobfd/main.go
// runServers shape. The metrics listener is shut down once the scheduler
// drains (or the process receives SIGINT/SIGTERM).
func runServers(
	cfg *config.ScenarioConfig,
	sc *simcontext.Context,
	reg *prometheus.Registry,
	collector *simmetrics.Collector,
	logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	// Since desim.Scheduler.Run has no cooperative cancellation of its own
	// (spec.md §5's single-threaded model gives it none), an interrupt
	// signal is honored by calling Stop explicitly rather than relying on
	// ctx being threaded into the run loop.
	g.Go(func() error {
		<-gCtx.Done()
		sc.Sched.Stop()
		return nil
	})

	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
			}
		}()

		runUntil := cfg.Scenario.RunUntil
		if runUntil > 0 {
			sc.Sched.Run(desim.Time(runUntil))
		} else {
			sc.Sched.Run()
		}
		collector.SampleQueueDepth(sc.Sched.Pending())

		logger.Info("scenario run complete", slog.Float64("sim_time", float64(sc.Sched.Now())))
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// openTraceSink opens the trace output destination named by path ("-" for
// stdout), returning a close func that is a no-op for stdout.
func openTraceSink(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path) //nolint:gosec // operator-supplied trace output path, not user input.
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
