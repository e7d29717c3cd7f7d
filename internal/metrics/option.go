package metrics

import (
	promclient "github.com/prometheus/client_golang/prometheus"
)

type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "customOtelCollector"
	InsecureOtel                = false
	SecureOtel                  = true
)

func NewPrometheusConfig() ProviderCfg {
	return ProviderCfg{Provider: PrometheusProvider}
}

func NewOtelCollectorConfig(url string, headers map[string]string, insecure bool) ProviderCfg {
	provider := ProviderCfg{
		Provider: OtelCollector,
		Endpoint: url,
		Headers:  headers,
		Insecure: insecure,
	}

	return provider
}

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
	Registerer  promclient.Registerer
}

type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

type OptionFn func(config Config) Config

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)

		return config
	}
}

// WithRegisterer makes the Prometheus reader register into reg instead of
// the default registerer.
func WithRegisterer(reg promclient.Registerer) OptionFn {
	return func(config Config) Config {
		config.Registerer = reg

		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName

		return config
	}
}

type PromServerConfig struct {
	maxInFlight int
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

func WithMaxRequestsInFlight(n int) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.maxInFlight = n
		return config
	}
}
