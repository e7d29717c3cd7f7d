// Package di contains dependency injection tokens for the head-lag context.
package di

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fd1az/headlag-exporter/business/headlag/app"
	"github.com/fd1az/headlag-exporter/business/headlag/infra/prom"
	"github.com/fd1az/headlag-exporter/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Aggregator = di.NewToken[*prom.Aggregator]("headlag.Aggregator")
	Supervisor = di.NewToken[*app.Supervisor]("headlag.Supervisor")
	Pipeline   = di.NewToken[*app.Pipeline]("headlag.Pipeline")
)

// Private dependency tokens - internal to headlag module
var (
	MinerRegistry = di.NewToken[*prometheus.Registry]("headlag:miner-registry")
)

// Helper functions for type-safe access
func GetAggregator(c di.ServiceRegistry) *prom.Aggregator {
	return di.GetToken(c, Aggregator)
}

func GetSupervisor(c di.ServiceRegistry) *app.Supervisor {
	return di.GetToken(c, Supervisor)
}

func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetMinerRegistry(c di.ServiceRegistry) *prometheus.Registry {
	return di.GetToken(c, MinerRegistry)
}
