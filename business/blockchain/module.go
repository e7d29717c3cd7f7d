// Package blockchain implements the upstream node bounded context: transport
// sessions and newHeads decoding.
package blockchain

import (
	"context"

	"github.com/fd1az/headlag-exporter/business/blockchain/app"
	blockchainDI "github.com/fd1az/headlag-exporter/business/blockchain/di"
	"github.com/fd1az/headlag-exporter/business/blockchain/infra/ethereum"
	"github.com/fd1az/headlag-exporter/internal/circuitbreaker"
	"github.com/fd1az/headlag-exporter/internal/config"
	"github.com/fd1az/headlag-exporter/internal/di"
	"github.com/fd1az/headlag-exporter/internal/httpclient"
	"github.com/fd1az/headlag-exporter/internal/logger"
	"github.com/fd1az/headlag-exporter/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register the raw transport (private - wrapped by HeadSource)
	di.RegisterToken(c, blockchainDI.Transport, func(sr di.ServiceRegistry) app.HeadSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		srcCfg := ethereum.DefaultSourceConfig(cfg.Upstream.WebSocketURL)
		srcCfg.DialTimeout = cfg.Upstream.DialTimeout
		srcCfg.HTTPHeader = cfg.Upstream.HTTPHeader()

		client, err := httpclient.New(httpclient.WithProviderName("upstream"))
		if err != nil {
			log.Warn(context.Background(), "handshake client not instrumented", "error", err)
		} else {
			srcCfg.HTTPClient = client
		}

		if cfg.Upstream.Transport == config.TransportRPC {
			return ethereum.NewRPCSource(srcCfg, log)
		}
		return ethereum.NewWSSource(srcCfg, log)
	})

	// Register HeadSource (public - transport, breaker-guarded when enabled)
	di.RegisterToken(c, blockchainDI.HeadSource, func(sr di.ServiceRegistry) app.HeadSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return newHeadSource(cfg.Upstream, blockchainDI.GetTransport(sr), log)
	})

	// Register HeadDecoder (public)
	di.RegisterToken(c, blockchainDI.HeadDecoder, func(sr di.ServiceRegistry) app.HeadDecoder {
		return ethereum.NewDecoder()
	})

	return nil
}

// newHeadSource wraps transport in a circuit breaker only when
// breaker_failures is set. While the breaker is open, reconnects fail
// without dialing until breaker_timeout elapses.
func newHeadSource(cfg config.UpstreamConfig, transport app.HeadSource, log logger.LoggerInterface) app.HeadSource {
	if cfg.BreakerFailures == 0 {
		return transport
	}

	cbCfg := circuitbreaker.DefaultConfig("upstream")
	cbCfg.FailureThreshold = cfg.BreakerFailures
	if cfg.BreakerTimeout > 0 {
		cbCfg.Timeout = cfg.BreakerTimeout
	}

	return app.NewGuardedSource(transport, cbCfg, log)
}

// Startup initializes the blockchain module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	src := blockchainDI.GetHeadSource(mono.Services())

	upstream := mono.Config().Upstream
	mono.Logger().Info(ctx, "blockchain module started",
		"source", src.Name(),
		"transport", upstream.Transport,
		"breaker_failures", upstream.BreakerFailures)
	return nil
}
