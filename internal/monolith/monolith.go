// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fd1az/headlag-exporter/internal/config"
	"github.com/fd1az/headlag-exporter/internal/di"
	"github.com/fd1az/headlag-exporter/internal/health"
	"github.com/fd1az/headlag-exporter/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	HTTP() *health.Server
	Registerer() prometheus.Registerer
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config     *config.Config
	logger     logger.LoggerInterface
	http       *health.Server
	registerer prometheus.Registerer
	container  di.Container
}

// New creates a new Monolith instance. reg receives the global lag metrics;
// it is usually prometheus.DefaultRegisterer.
func New(cfg *config.Config, log logger.LoggerInterface, srv *health.Server, reg prometheus.Registerer) *app {
	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("http", srv)
	container.Register("registerer", reg)

	return &app{
		config:     cfg,
		logger:     log,
		http:       srv,
		registerer: reg,
		container:  container,
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) HTTP() *health.Server {
	return a.http
}

func (a *app) Registerer() prometheus.Registerer {
	return a.registerer
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
