// Package headlag implements the head-lag bounded context: lag evaluation,
// aggregation into Prometheus series and the ingestion pipeline.
package headlag

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	blockchainDI "github.com/fd1az/headlag-exporter/business/blockchain/di"
	"github.com/fd1az/headlag-exporter/business/headlag/app"
	headlagDI "github.com/fd1az/headlag-exporter/business/headlag/di"
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/business/headlag/infra/prom"
	"github.com/fd1az/headlag-exporter/internal/config"
	"github.com/fd1az/headlag-exporter/internal/di"
	"github.com/fd1az/headlag-exporter/internal/logger"
	"github.com/fd1az/headlag-exporter/internal/metrics"
	"github.com/fd1az/headlag-exporter/internal/monolith"
)

// maxScrapesInFlight bounds concurrent scrapes per metrics endpoint.
const maxScrapesInFlight = 4

// Module implements the head-lag bounded context. It must be registered
// after the blockchain module.
type Module struct{}

// RegisterServices builds the aggregator and supervisor and registers them
// with the DI container. Construction is eager so bad settings fail here.
func (m *Module) RegisterServices(c di.Container) error {
	cfg := c.Get("config").(*config.Config)
	log := c.Get("logger").(logger.LoggerInterface)
	reg := c.Get("registerer").(prometheus.Registerer)

	buckets, err := cfg.Exporter.Buckets()
	if err != nil {
		return err
	}

	minerRegistry := prometheus.NewRegistry()

	agg, err := prom.New(prom.Config{
		Buckets:        buckets,
		MaxMinerSeries: cfg.Exporter.MaxMinerSeries,
	}, reg, minerRegistry)
	if err != nil {
		return err
	}

	supCfg := app.SupervisorConfig{
		StallTimeout:     cfg.Upstream.StallTimeout,
		SubscribeTimeout: cfg.Upstream.SubscribeTimeout,
		Backoff: app.NewBackoff(
			cfg.Supervisor.Backoff,
			cfg.Supervisor.ReconnectDelay,
			cfg.Supervisor.MaxReconnectDelay,
			cfg.Supervisor.Jitter,
		),
		AttemptsPerMinute: cfg.Supervisor.AttemptsPerMinute,
	}

	sup, err := app.NewSupervisor(
		blockchainDI.GetHeadSource(c),
		blockchainDI.GetHeadDecoder(c),
		domain.NewEvaluator(cfg.Exporter.MaxBlockLag),
		agg,
		supCfg,
		log,
	)
	if err != nil {
		return err
	}

	c.Register(headlagDI.MinerRegistry.Name(), minerRegistry)
	c.Register(headlagDI.Aggregator.Name(), agg)
	c.Register(headlagDI.Supervisor.Name(), sup)

	di.RegisterToken(c, headlagDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		return app.NewPipeline(headlagDI.GetSupervisor(sr), sr.Get("logger").(logger.LoggerInterface))
	})

	return nil
}

// Startup mounts the metrics endpoints and the readiness check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	srv := mono.HTTP()
	sup := headlagDI.GetSupervisor(mono.Services())

	gatherer, ok := mono.Registerer().(prometheus.Gatherer)
	if !ok {
		return fmt.Errorf("registerer %T cannot be gathered", mono.Registerer())
	}

	srv.Handle("GET /metrics", metrics.Handler(gatherer, metrics.WithMaxRequestsInFlight(maxScrapesInFlight)))
	srv.Handle("GET "+cfg.Exporter.MinersPath, metrics.Handler(headlagDI.GetMinerRegistry(mono.Services()),
		metrics.WithMaxRequestsInFlight(maxScrapesInFlight)))

	srv.RegisterCheck("pipeline", func(context.Context) (bool, string) {
		return sup.Ready(), string(sup.Status().State)
	})

	mono.Logger().Info(ctx, "headlag module started",
		"max_block_lag", cfg.Exporter.MaxBlockLag,
		"miners_path", cfg.Exporter.MinersPath,
		"backoff", cfg.Supervisor.Backoff)
	return nil
}
