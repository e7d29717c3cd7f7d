// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fd1az/headlag-exporter/internal/apperror"
)

// DefaultHistBuckets are the lag histogram upper bounds in seconds.
const DefaultHistBuckets = "0.05,0.08,0.1,0.15,0.2,0.3,0.4,0.6,0.8,1.0,1.2,1.6,2.0,2.5,3.0,4.0,8.0,+Inf"

// Transports.
const (
	TransportWebSocket = "websocket"
	TransportRPC       = "rpc"
)

// Backoff strategies.
const (
	BackoffFlat        = "flat"
	BackoffExponential = "exponential"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Exporter   ExporterConfig   `mapstructure:"exporter"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime from flags
}

// UpstreamConfig holds the node connection settings.
type UpstreamConfig struct {
	WebSocketURL     string        `mapstructure:"ws_url"`
	Transport        string        `mapstructure:"transport"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
	StallTimeout     time.Duration `mapstructure:"stall_timeout"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"` // 0 = no breaker
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`  // open period once tripped
	Headers          string        `mapstructure:"headers"`
}

// HTTPHeader parses Headers ("k1=v1,k2=v2") into handshake headers.
func (c *UpstreamConfig) HTTPHeader() http.Header {
	header := make(http.Header)
	for k, v := range parsePairs(c.Headers) {
		header.Set(k, v)
	}
	return header
}

// SupervisorConfig holds the reconnection policy.
type SupervisorConfig struct {
	Backoff           string        `mapstructure:"backoff"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	Jitter            float64       `mapstructure:"jitter"`
	AttemptsPerMinute int           `mapstructure:"attempts_per_minute"`
}

// ExporterConfig holds the metrics endpoint and aggregation settings.
type ExporterConfig struct {
	ListenPort     int     `mapstructure:"listen_port"`
	HistBuckets    string  `mapstructure:"hist_buckets"`
	MaxBlockLag    float64 `mapstructure:"max_block_lag"`
	MaxMinerSeries int     `mapstructure:"max_miner_series"`
	MinersPath     string  `mapstructure:"miners_path"`
}

// Buckets parses HistBuckets.
func (c *ExporterConfig) Buckets() ([]float64, error) {
	return ParseBuckets(c.HistBuckets)
}

// ListenAddr returns the HTTP listen address.
func (c *ExporterConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	TraceProvider string  `mapstructure:"trace_provider"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders   string  `mapstructure:"otlp_headers"`
	OTLPProtocol  string  `mapstructure:"otlp_protocol"`
	ZipkinURL     string  `mapstructure:"zipkin_url"`
	PushMetrics   bool    `mapstructure:"push_metrics"`
}

// Headers parses OTLPHeaders ("k1=v1,k2=v2").
func (c *TelemetryConfig) Headers() map[string]string {
	return parsePairs(c.OTLPHeaders)
}

func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" {
			pairs[k] = v
		}
	}
	return pairs
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("HEADLAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "HEADLAG_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "HEADLAG_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "HEADLAG_LOG_LEVEL", "LOG_LEVEL")

	// Upstream
	v.BindEnv("upstream.ws_url", "HEADLAG_WS_URL", "WS_URL")
	v.BindEnv("upstream.transport", "HEADLAG_TRANSPORT")
	v.BindEnv("upstream.stall_timeout", "HEADLAG_STALL_TIMEOUT")
	v.BindEnv("upstream.headers", "HEADLAG_UPSTREAM_HEADERS")
	v.BindEnv("upstream.breaker_failures", "HEADLAG_BREAKER_FAILURES")
	v.BindEnv("upstream.breaker_timeout", "HEADLAG_BREAKER_TIMEOUT")

	// Supervisor
	v.BindEnv("supervisor.backoff", "HEADLAG_BACKOFF")
	v.BindEnv("supervisor.reconnect_delay", "HEADLAG_RECONNECT_DELAY")

	// Exporter
	v.BindEnv("exporter.listen_port", "HEADLAG_LISTENER_PORT", "LISTENER_PORT")
	v.BindEnv("exporter.hist_buckets", "HEADLAG_HIST_BUCKETS", "HIST_BUCKETS")
	v.BindEnv("exporter.max_block_lag", "HEADLAG_MAX_BLOCK_LAG", "MAX_BLOCK_LAG")
	v.BindEnv("exporter.max_miner_series", "HEADLAG_MAX_MINER_SERIES")

	// Telemetry
	v.BindEnv("telemetry.enabled", "HEADLAG_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "HEADLAG_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "HEADLAG_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "HEADLAG_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "headlag-exporter")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Upstream defaults
	v.SetDefault("upstream.ws_url", "ws://localhost:8545")
	v.SetDefault("upstream.transport", TransportWebSocket)
	v.SetDefault("upstream.dial_timeout", "10s")
	v.SetDefault("upstream.subscribe_timeout", "5s")
	v.SetDefault("upstream.stall_timeout", "5s")
	v.SetDefault("upstream.breaker_failures", 0) // disabled: every reconnect dials
	v.SetDefault("upstream.breaker_timeout", "30s")

	// Supervisor defaults
	v.SetDefault("supervisor.backoff", BackoffFlat)
	v.SetDefault("supervisor.reconnect_delay", "2s")
	v.SetDefault("supervisor.max_reconnect_delay", "60s")
	v.SetDefault("supervisor.jitter", 0.2)
	v.SetDefault("supervisor.attempts_per_minute", 0) // unlimited

	// Exporter defaults
	v.SetDefault("exporter.listen_port", 8000)
	v.SetDefault("exporter.hist_buckets", DefaultHistBuckets)
	v.SetDefault("exporter.max_block_lag", 60.0)
	v.SetDefault("exporter.max_miner_series", 0) // unbounded
	v.SetDefault("exporter.miners_path", "/metrics/miners")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "headlag-exporter")
	v.SetDefault("telemetry.trace_provider", "otlp")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.otlp_protocol", "grpc")
	v.SetDefault("telemetry.push_metrics", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Upstream.WebSocketURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("upstream.ws_url must be a ws:// or wss:// url: %q", c.Upstream.WebSocketURL)
	}
	switch c.Upstream.Transport {
	case TransportWebSocket, TransportRPC:
	default:
		return fmt.Errorf("upstream.transport must be %q or %q: %q", TransportWebSocket, TransportRPC, c.Upstream.Transport)
	}
	if c.Upstream.StallTimeout <= 0 {
		return fmt.Errorf("upstream.stall_timeout must be positive")
	}
	if c.Upstream.SubscribeTimeout <= 0 {
		return fmt.Errorf("upstream.subscribe_timeout must be positive")
	}

	switch c.Supervisor.Backoff {
	case BackoffFlat, BackoffExponential:
	default:
		return fmt.Errorf("supervisor.backoff must be %q or %q: %q", BackoffFlat, BackoffExponential, c.Supervisor.Backoff)
	}
	if c.Supervisor.ReconnectDelay < 0 {
		return fmt.Errorf("supervisor.reconnect_delay cannot be negative")
	}
	if c.Supervisor.Jitter < 0 || c.Supervisor.Jitter > 1 {
		return fmt.Errorf("supervisor.jitter must be within [0, 1]: %v", c.Supervisor.Jitter)
	}

	if c.Exporter.ListenPort <= 0 || c.Exporter.ListenPort > 65535 {
		return fmt.Errorf("invalid exporter.listen_port: %d", c.Exporter.ListenPort)
	}
	if _, err := c.Exporter.Buckets(); err != nil {
		return err
	}
	if c.Exporter.MaxBlockLag <= 0 {
		return fmt.Errorf("exporter.max_block_lag must be positive")
	}
	if c.Exporter.MaxMinerSeries < 0 {
		return fmt.Errorf("exporter.max_miner_series cannot be negative")
	}
	if !strings.HasPrefix(c.Exporter.MinersPath, "/") || c.Exporter.MinersPath == "/metrics" {
		return fmt.Errorf("invalid exporter.miners_path: %q", c.Exporter.MinersPath)
	}
	return nil
}

// ParseBuckets parses a comma separated list of histogram upper bounds. The
// bounds must be strictly ascending; a trailing +Inf is accepted and dropped
// since the histogram always carries one.
func ParseBuckets(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	buckets := make([]float64, 0, len(parts))

	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(b) || math.IsInf(b, -1) {
			return nil, apperror.New(apperror.CodeInvalidBuckets,
				apperror.WithContext(fmt.Sprintf("bucket %d: %q", i, p)))
		}
		if math.IsInf(b, 1) {
			if i != len(parts)-1 {
				return nil, apperror.New(apperror.CodeInvalidBuckets,
					apperror.WithContext("+Inf must be the last bucket"))
			}
			continue
		}
		if n := len(buckets); n > 0 && b <= buckets[n-1] {
			return nil, apperror.New(apperror.CodeInvalidBuckets,
				apperror.WithContext(fmt.Sprintf("bucket %v not greater than %v", b, buckets[n-1])))
		}
		buckets = append(buckets, b)
	}

	if len(buckets) == 0 {
		return nil, apperror.New(apperror.CodeInvalidBuckets,
			apperror.WithContext("no finite buckets"))
	}
	return buckets, nil
}
