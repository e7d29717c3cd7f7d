package apm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/headlag-exporter/internal/logger"
)

type Provider string

const (
	OTLPProvider    Provider = "otlp"
	ZipkinProvider  Provider = "zipkin"
	ConsoleProvider Provider = "console"
	EmptyProvider   Provider = "empty"
)

// Protocols accepted by the OTLP provider.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

// ExporterConfig carries the endpoint settings for a provider.
type ExporterConfig struct {
	Endpoint string
	Headers  map[string]string
	Protocol string
}

type TracerOptions struct {
	exporter           sdktrace.SpanExporter
	tracerProviderName string
	serviceName        string
	sampleRatio        float64
	useEmpty           bool
	err                error
}

type TracerOption func(*TracerOptions)

// WithProvider selects the span exporter. Unknown providers fall back to the
// empty provider.
func WithProvider(provider Provider, cfg ExporterConfig, log logger.LoggerInterface) TracerOption {
	switch provider {
	case OTLPProvider:
		return useOTLP(cfg, log)
	case ZipkinProvider:
		return useZipkin(cfg)
	case ConsoleProvider:
		return useConsole()
	case EmptyProvider:
		return useEmpty()
	}

	log.Warn(context.Background(), "trace provider not found, using empty provider", "provider", provider)

	return useEmpty()
}

func WithServiceName(name string) TracerOption {
	return func(option *TracerOptions) {
		option.serviceName = name
	}
}

// WithSampleRatio sets the parent-based trace id ratio; values >= 1 sample
// everything.
func WithSampleRatio(ratio float64) TracerOption {
	return func(option *TracerOptions) {
		option.sampleRatio = ratio
	}
}

func useEmpty() TracerOption {
	return func(option *TracerOptions) {
		option.useEmpty = true
		option.tracerProviderName = string(EmptyProvider)
	}
}

func useConsole() TracerOption {
	return func(option *TracerOptions) {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			option.err = err
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(ConsoleProvider)
	}
}

func useZipkin(cfg ExporterConfig) TracerOption {
	return func(option *TracerOptions) {
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			option.err = err
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(ZipkinProvider)
	}
}

func useOTLP(cfg ExporterConfig, log logger.LoggerInterface) TracerOption {
	return func(option *TracerOptions) {
		var exp sdktrace.SpanExporter
		var err error

		if cfg.Protocol == ProtocolHTTP {
			log.Info(context.Background(), "initializing otlp http trace exporter", "endpoint", cfg.Endpoint)
			exp, err = otlptracehttp.New(
				context.Background(),
				otlptracehttp.WithEndpointURL(cfg.Endpoint),
				otlptracehttp.WithHeaders(cfg.Headers),
			)
		} else {
			log.Info(context.Background(), "initializing otlp grpc trace exporter", "endpoint", cfg.Endpoint)
			exp, err = otlptracegrpc.New(
				context.Background(),
				otlptracegrpc.WithEndpointURL(cfg.Endpoint),
				otlptracegrpc.WithHeaders(cfg.Headers),
			)
		}

		if err != nil {
			option.err = err
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(OTLPProvider)
	}
}

// NewTraceProvider builds and installs the global tracer provider.
func NewTraceProvider(options ...TracerOption) (TraceProvider, error) {
	opts := &TracerOptions{sampleRatio: 1}

	for _, opt := range options {
		opt(opts)
	}

	if opts.err != nil {
		return nil, fmt.Errorf("trace exporter %s: %w", opts.tracerProviderName, opts.err)
	}

	if opts.useEmpty || opts.exporter == nil {
		return NewEmptyTraceProvider(), nil
	}

	rsrc := resource.NewSchemaless(
		semconv.ServiceNameKey.String(opts.serviceName),
		attribute.String("otel.provider", opts.tracerProviderName),
	)

	sampler := sdktrace.AlwaysSample()
	if opts.sampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.sampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)

	// Set global trace provider
	otel.SetTracerProvider(tp)

	// Set trace propagator
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{
		tp,
	}, nil
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}
