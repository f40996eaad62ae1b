package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/upready/internal/adapters/http/api"
	"github.com/okian/upready/internal/adapters/http/swagger"
	app "github.com/okian/upready/internal/app"
	"github.com/okian/upready/internal/config"
	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/internal/synth"
	"github.com/okian/upready/pkg/logger"
	"github.com/okian/upready/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 3 * time.Minute // POST /refresh waits for a whole cycle
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	cfg     *config.Config
	samples string
	force   bool
	synth   *synth.Config
	offline bool
}

func newRootCmd() *cobra.Command {
	c := &cli{synth: synth.DefaultConfig()}
	root := &cobra.Command{
		Use:           "upready",
		Short:         "upready - personal physiological readiness engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, ingest workers and the refresh scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.refresh(cmd.Context(), cmd.OutOrStdout())
		},
	}
	refreshCmd.Flags().StringVar(&c.samples, "samples", "", "JSON file of items to ingest first (same schema as POST /samples)")
	refreshCmd.Flags().BoolVar(&c.force, "force", true, "skip the staleness check")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic nights and push them to a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.generate(cmd)
		},
	}
	gf := generateCmd.Flags()
	gf.StringVar(&c.synth.BaseURL, "url", c.synth.BaseURL, "base URL of the service")
	gf.IntVar(&c.synth.Days, "days", c.synth.Days, "number of nights to generate")
	gf.IntVar(&c.synth.Workers, "workers", c.synth.Workers, "number of concurrent workers")
	gf.IntVar(&c.synth.BatchSize, "batch", c.synth.BatchSize, "items per POST /samples request")
	gf.DurationVar(&c.synth.Timeout, "timeout", c.synth.Timeout, "HTTP request timeout")
	gf.StringVar(&c.synth.OutputFile, "output", "", "also write the generated items to this JSON file")
	gf.StringVar(&c.synth.BirthDate, "birth-date", "", "birth date item to include (YYYY-MM-DD); defaults to birth_date from config")
	gf.BoolVar(&c.synth.BloodOxygen, "blood-oxygen", false, "generate blood oxygen samples; defaults to the configured capability")
	gf.BoolVar(&c.synth.BodyTemperature, "body-temperature", false, "generate body temperature samples; defaults to the configured capability")
	gf.BoolVar(&c.synth.Refresh, "refresh", c.synth.Refresh, "force a refresh and verify readiness afterwards")
	gf.BoolVar(&c.offline, "offline", false, "only write --output; do not contact the server")

	root.AddCommand(serveCmd, refreshCmd, generateCmd)
	return root
}

// setup loads configuration and initializes logging.
func (c *cli) setup(ctx context.Context, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(stderr)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func (c *cli) serve(ctx context.Context) error {
	log := logger.Get()

	svc := app.New(c.cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	loc, _ := c.cfg.Location()
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	apiServer := api.NewServer(svc, svc,
		api.WithLocation(loc),
		api.WithHistoryDays(c.cfg.HistoryDays),
	)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func (c *cli) refresh(ctx context.Context, out io.Writer) error {
	log := logger.Get()

	svc := app.New(c.cfg,
		app.WithLogger(log.Named("service")),
		app.WithoutWorkers(),
		app.WithoutScheduler(),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

	if c.samples != "" {
		if err := loadSamples(ctx, svc, c.samples); err != nil {
			return err
		}
	}

	res, cycleErr := svc.RunCycle(ctx, refresh.Request{Force: c.force})
	if res != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	return cycleErr
}

// generate fills unset sensor and profile flags from the loaded config.
func (c *cli) generate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	if !flags.Changed("birth-date") {
		c.synth.BirthDate = c.cfg.BirthDate
	}
	if !flags.Changed("blood-oxygen") {
		c.synth.BloodOxygen = c.cfg.BloodOxygenAvailable
	}
	if !flags.Changed("body-temperature") {
		c.synth.BodyTemperature = c.cfg.BodyTemperatureAvailable
	}

	if c.offline {
		if c.synth.OutputFile == "" {
			return errors.New("--offline requires --output")
		}
		items, err := synth.Generate(ctx, c.synth)
		if err != nil {
			return err
		}
		return synth.SaveItems(ctx, c.synth.OutputFile, items)
	}

	stats, err := synth.Run(ctx, c.synth)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "generated %d items: %d accepted, %d duplicate\n",
		stats.ItemsGenerated, stats.Accepted.Load(), stats.Duplicates.Load())
	return nil
}

func loadSamples(ctx context.Context, svc *app.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening samples: %w", err)
	}
	defer f.Close()

	items, err := api.ParseIngest(f, time.Now())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := svc.Ingest(ctx, items); err != nil {
		return err
	}
	logger.Get().Info(ctx, "samples loaded", logger.String("path", path), logger.Int("items", len(items)))
	return nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
