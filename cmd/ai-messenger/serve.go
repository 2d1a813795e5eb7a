package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	goutils "github.com/jkaninda/go-utils"

	wruntime "github.com/ChristianGrete/ai-messenger/internal/adapter/runtime"
	"github.com/ChristianGrete/ai-messenger/internal/adapter/services"
	"github.com/ChristianGrete/ai-messenger/internal/config"
	"github.com/ChristianGrete/ai-messenger/internal/observability"
	"github.com/ChristianGrete/ai-messenger/internal/ratelimit"
	"github.com/ChristianGrete/ai-messenger/internal/server"
)

var (
	serveConfigPath string
	serveHost       string
	servePort       int
	serveLogLevel   string
	serveVerbose    bool
	serveDocs       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the messaging gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `ai-messenger --config path` and `ai-messenger serve --config path`
	// both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serveHost, "host", "", "override HTTP listen host")
		cmd.Flags().IntVar(&servePort, "port", 0, "override HTTP listen port")
		cmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
		cmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "shorthand for --log-level debug")
		cmd.Flags().BoolVar(&serveDocs, "docs", false, "serve OpenAPI documentation")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load(goutils.Env("AI_MESSENGER_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger.Info("starting ai-messenger",
		slog.String("config", serveConfigPath),
		slog.String("addr", cfg.Server.ListenAddr()),
	)

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}

	var tracer trace.Tracer
	if ts := obs.TracerOrNil(); ts != nil {
		tracer = ts.Tracer()
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := services.NewRegistry(ctx,
		wruntime.EngineConfig{CacheDir: cfg.ResolvedCacheDir()},
		logger,
		services.WithMetrics(obs.MetricsOrNil()),
		services.WithTracer(tracer),
	)
	if err != nil {
		return err
	}

	report := registry.InitializeFromConfig(ctx, cfg, cfg.ResolvedDataDir())
	for _, f := range report.Failed {
		logger.Warn("continuing without adapter",
			slog.String("service", f.Service),
			slog.String("provider", f.Provider),
		)
	}
	logger.Info("adapters initialized",
		slog.Int("loaded", len(report.Loaded)),
		slog.Int("failed", len(report.Failed)),
	)

	gwCfg := server.Config{
		ListenAddr: cfg.Server.ListenAddr(),
		BasePath:   cfg.Server.BasePath,
		EnableDocs: serveDocs,
		Metrics:    obs.MetricsOrNil(),
		Tracer:     tracer,
	}
	if m := obs.MetricsOrNil(); m != nil {
		gwCfg.MetricsRegistry = m.Registry
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			gwCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}
	if rl := cfg.Server.RateLimit; rl != nil && rl.RequestsPerMinute > 0 {
		gwCfg.Limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
		})
		logger.Info("rate limiting enabled",
			slog.Int("requests_per_minute", rl.RequestsPerMinute),
			slog.Int("burst_size", rl.BurstSize),
		)
	}

	gw := server.NewGateway(gwCfg, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful teardown with a fresh deadline; the signal context is done.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", slog.String("error", err.Error()))
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error("registry shutdown failed", slog.String("error", err.Error()))
	}
	obs.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if serveVerbose {
		serveLogLevel = "debug"
	}
	switch serveLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
