// Package main is the entry point for the block head lag exporter.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fd1az/headlag-exporter/business/blockchain"
	"github.com/fd1az/headlag-exporter/business/headlag"
	"github.com/fd1az/headlag-exporter/business/headlag/app"
	headlagDI "github.com/fd1az/headlag-exporter/business/headlag/di"
	"github.com/fd1az/headlag-exporter/internal/apm"
	"github.com/fd1az/headlag-exporter/internal/config"
	"github.com/fd1az/headlag-exporter/internal/health"
	"github.com/fd1az/headlag-exporter/internal/logger"
	"github.com/fd1az/headlag-exporter/internal/metrics"
	"github.com/fd1az/headlag-exporter/internal/monolith"
	"github.com/fd1az/headlag-exporter/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Show the live dashboard instead of logs")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("headlag-exporter %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	// In TUI mode, suppress logs (discard output)
	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)

	log.Info(ctx, "starting head lag exporter",
		"version", version,
		"environment", cfg.App.Environment,
		"upstream", cfg.Upstream.WebSocketURL,
	)

	traceProvider, err := initTracing(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer traceProvider.Stop()

	meterProvider, err := initMetrics(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		meterProvider.Shutdown(shutdownCtx)
	}()

	srv := health.NewServer(cfg.Exporter.ListenAddr(), version, log)

	mono := monolith.New(cfg, log, srv, prometheus.DefaultRegisterer)

	// Define modules in dependency order
	modules := []monolith.Module{
		&blockchain.Module{}, // Must be first - provides the head source
		&headlag.Module{},    // Depends on blockchain
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	handle := headlagDI.GetPipeline(mono.Services()).Start(ctx)

	if tuiMode {
		err = runTUI(ctx, cfg, mono, handle)
	} else {
		err = runCLI(ctx, handle, log)
	}

	// Ordered shutdown: ingestion first, then the listener.
	if stopErr := handle.Stop(); stopErr != nil {
		log.Error(ctx, "pipeline stopped with error", "error", stopErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		log.Error(ctx, "http server shutdown", "error", stopErr)
	}

	log.Info(context.Background(), "shutdown complete")
	return err
}

func runCLI(ctx context.Context, handle *app.Handle, log logger.LoggerInterface) error {
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down", "reason", ctx.Err())
		return nil
	case <-handle.Done():
		return handle.Err()
	}
}

func runTUI(ctx context.Context, cfg *config.Config, mono monolith.Monolith, handle *app.Handle) error {
	agg := headlagDI.GetAggregator(mono.Services())
	sup := headlagDI.GetSupervisor(mono.Services())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := ui.NewProgram(ctx, ui.NewSource(agg.Snapshot, sup.Status), cfg.Exporter.MaxBlockLag)

	go func() {
		select {
		case <-handle.Done():
			if err := handle.Err(); err != nil {
				p.Send(ui.ErrorMsg{Error: err})
			}
		case <-ctx.Done():
		}
	}()

	return ui.Run(p)
}

func initTracing(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (apm.TraceProvider, error) {
	if !cfg.Telemetry.Enabled {
		return apm.NewEmptyTraceProvider(), nil
	}

	provider := apm.Provider(cfg.Telemetry.TraceProvider)
	exporterCfg := apm.ExporterConfig{
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Headers:  cfg.Telemetry.Headers(),
		Protocol: cfg.Telemetry.OTLPProtocol,
	}
	if provider == apm.ZipkinProvider {
		exporterCfg.Endpoint = cfg.Telemetry.ZipkinURL
	}

	tp, err := apm.NewTraceProvider(
		apm.WithProvider(provider, exporterCfg, log),
		apm.WithServiceName(cfg.Telemetry.ServiceName),
		apm.WithSampleRatio(cfg.Telemetry.SampleRatio),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	log.Info(ctx, "tracing initialized", "provider", provider, "endpoint", exporterCfg.Endpoint)
	return tp, nil
}

// initMetrics installs the meter provider. Operational instruments always go
// to the default registry so /metrics serves them; OTLP push is optional.
func initMetrics(cfg *config.Config) (metrics.MetricProvider, error) {
	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithRegisterer(prometheus.DefaultRegisterer),
		metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.PushMetrics {
		insecure := strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "http://")
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Headers(), insecure),
		))
	}

	mp, err := metrics.NewMetricProvider(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return mp, nil
}
