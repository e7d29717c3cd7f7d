// Package httpclient builds instrumented HTTP clients for upstream
// handshakes, with OTEL tracing and a request counter.
package httpclient

import (
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

// ClientOptions holds configuration for the instrumented HTTP client.
type ClientOptions struct {
	meterProvider metric.MeterProvider
	providerName  string
	roundTripper  http.RoundTripper
	headers       http.Header
}

// ClientOption is a function that configures ClientOptions.
type ClientOption func(*ClientOptions)

// NewClientOptions creates ClientOptions from variadic options.
func NewClientOptions(opts ...ClientOption) *ClientOptions {
	options := &ClientOptions{}
	for _, o := range opts {
		o(options)
	}
	return options
}

// WithMeterProvider sets the OTEL meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *ClientOptions) {
		o.meterProvider = mp
	}
}

// WithProviderName sets the provider name for metrics and traces.
func WithProviderName(name string) ClientOption {
	return func(o *ClientOptions) {
		o.providerName = name
	}
}

// WithRoundTripper sets a custom HTTP transport.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *ClientOptions) {
		o.roundTripper = rt
	}
}

// WithHeaders sets headers added to every request that does not already
// carry them.
func WithHeaders(headers http.Header) ClientOption {
	return func(o *ClientOptions) {
		o.headers = headers
	}
}
