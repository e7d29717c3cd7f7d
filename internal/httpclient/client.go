package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Default connection pool settings
	defaultDialKeepAlive         = 10 * time.Second
	defaultMaxIdleConns          = 0
	defaultMaxConnsPerHost       = 5
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond

	// Metric names
	metricRequestCounter = "headlag_upstream_http_requests"
)

// New returns an *http.Client whose transport is traced with otelhttp and
// counts requests by provider and outcome. It carries no overall timeout;
// callers bound each request with its context, as websocket dials do.
// Protocol-switch responses keep their writable body, so the client works
// for websocket handshakes.
func New(opts ...ClientOption) (*http.Client, error) {
	options := NewClientOptions(opts...)

	transport := options.roundTripper
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxConnsPerHost:       defaultMaxConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		}
	}

	providerName := options.providerName
	if providerName == "" {
		providerName = "default"
	}

	meterProvider := options.meterProvider
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(
		"github.com/fd1az/headlag-exporter/internal/httpclient",
		metric.WithInstrumentationAttributes(attribute.String("provider", providerName)),
	)

	requestCounter, err := meter.Int64Counter(
		metricRequestCounter,
		metric.WithDescription("HTTP requests sent to the upstream node, including websocket handshakes"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	counted := &countingTransport{
		next:     transport,
		counter:  requestCounter,
		provider: providerName,
		headers:  options.headers,
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(
			counted,
			otelhttp.WithMeterProvider(meterProvider),
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}, nil
}

// countingTransport adds default headers and records one counter point per
// round trip. It never wraps the response body.
type countingTransport struct {
	next     http.RoundTripper
	counter  metric.Int64Counter
	provider string
	headers  http.Header
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, vs := range t.headers {
			if req.Header.Get(k) != "" {
				continue
			}
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := t.next.RoundTrip(req)

	outcome := "error"
	if err == nil {
		outcome = outcomeFor(resp.StatusCode)
	}
	t.counter.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("provider", t.provider),
		attribute.String("outcome", outcome),
	))

	return resp, err
}

func outcomeFor(status int) string {
	switch {
	case status == http.StatusSwitchingProtocols:
		return "upgraded"
	case status >= 400:
		return "rejected"
	default:
		return "ok"
	}
}
