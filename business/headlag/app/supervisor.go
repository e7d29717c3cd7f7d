package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	blockchainApp "github.com/fd1az/headlag-exporter/business/blockchain/app"
	blockchainDomain "github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/internal/apm"
	"github.com/fd1az/headlag-exporter/internal/apperror"
	"github.com/fd1az/headlag-exporter/internal/logger"
	"github.com/fd1az/headlag-exporter/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/headlag-exporter/business/headlag/app"
	meterName  = "github.com/fd1az/headlag-exporter/business/headlag/app"
)

// SupervisorConfig holds supervisor settings.
type SupervisorConfig struct {
	StallTimeout      time.Duration // max silence between notifications
	SubscribeTimeout  time.Duration // max wait for the subscription ack
	Backoff           Backoff
	AttemptsPerMinute int              // 0 = unlimited
	Clock             func() time.Time // nil = time.Now
}

// DefaultSupervisorConfig returns the stock settings: 5s stall, 5s
// subscribe, flat 2s reconnect.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		StallTimeout:     5 * time.Second,
		SubscribeTimeout: 5 * time.Second,
		Backoff:          NewBackoff(BackoffFlat, 2*time.Second, time.Minute, 0),
	}
}

type supervisorMetrics struct {
	restarts     metric.Int64Counter
	messages     metric.Int64Counter
	decodeErrors metric.Int64Counter
	staleBlocks  metric.Int64Counter
	sessionState metric.Int64Gauge
}

// Supervisor keeps one newHeads session alive and feeds every decoded head
// to the observer. It restarts the session after any non-decode failure and
// never gives up until its context is cancelled.
type Supervisor struct {
	source    blockchainApp.HeadSource
	decoder   blockchainApp.HeadDecoder
	evaluator domain.Evaluator
	observer  Observer
	cfg       SupervisorConfig
	limiter   *ratelimit.Limiter
	log       logger.LoggerInterface
	tracer    apm.Tracer
	now       func() time.Time
	metrics   *supervisorMetrics

	restarts atomic.Uint64

	mu     sync.RWMutex
	status blockchainDomain.ConnectionStatus
}

// NewSupervisor creates a supervisor. It does not connect until Run.
func NewSupervisor(
	source blockchainApp.HeadSource,
	decoder blockchainApp.HeadDecoder,
	evaluator domain.Evaluator,
	observer Observer,
	cfg SupervisorConfig,
	log logger.LoggerInterface,
) (*Supervisor, error) {
	if cfg.StallTimeout <= 0 || cfg.SubscribeTimeout <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "stall and subscribe timeouts must be positive")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	s := &Supervisor{
		source:    source,
		decoder:   decoder,
		evaluator: evaluator,
		observer:  observer,
		cfg:       cfg,
		limiter:   ratelimit.New(cfg.AttemptsPerMinute, 3),
		log:       log,
		tracer:    apm.NewTracer(tracerName),
		now:       now,
		status: blockchainDomain.ConnectionStatus{
			State:  blockchainDomain.StateConnecting,
			Source: source.Name(),
		},
	}

	if err := s.initMetrics(); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("init supervisor metrics"))
	}

	return s, nil
}

func (s *Supervisor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &supervisorMetrics{}

	s.metrics.restarts, err = meter.Int64Counter(
		"headlag_session_restarts",
		metric.WithDescription("Upstream sessions that ended and were restarted"),
		metric.WithUnit("{restart}"),
	)
	if err != nil {
		return err
	}

	s.metrics.messages, err = meter.Int64Counter(
		"headlag_messages",
		metric.WithDescription("newHeads notifications received"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	s.metrics.decodeErrors, err = meter.Int64Counter(
		"headlag_decode_errors",
		metric.WithDescription("Notifications that could not be decoded"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	s.metrics.staleBlocks, err = meter.Int64Counter(
		"headlag_stale_blocks",
		metric.WithDescription("Blocks whose lag fell outside the staleness window"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.sessionState, err = meter.Int64Gauge(
		"headlag_session_state",
		metric.WithDescription("Session state (0=connecting, 1=subscribed, 2=streaming, 3=failed)"),
		metric.WithUnit("{state}"),
	)
	return err
}

// Run drives sessions until ctx is cancelled and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(ctx, blockchainDomain.StateConnecting)
		s.log.Info(ctx, "session starting", "attempt", attempt, "source", s.source.Name())

		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		streamed, err := s.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if streamed {
			failures = 0
		}
		failures++
		s.fail(ctx, err)

		delay := s.cfg.Backoff.Delay(failures)
		s.log.Info(ctx, "reconnecting", "delay", delay.String(), "failures", failures)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runSession runs one open/subscribe/stream cycle. It always returns a
// non-nil error; streamed reports whether any notification arrived.
func (s *Supervisor) runSession(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.StartSpanFromContext(ctx, "headlag.session")
	defer span.End()
	span.SetAttributes(attribute.String("source", s.source.Name()))

	sess, err := s.source.Open(ctx)
	if err != nil {
		span.NoticeError(err)
		return false, err
	}
	defer sess.Close()

	id, err := s.subscribe(ctx, sess)
	if err != nil {
		span.NoticeError(err)
		return false, err
	}

	s.mu.Lock()
	s.status.SubscriptionID = id
	s.mu.Unlock()
	s.setState(ctx, blockchainDomain.StateSubscribed)
	s.log.Info(ctx, "subscribed to newHeads", "subscription", id)

	streamed := false
	for {
		raw, err := sess.Next(ctx, s.cfg.StallTimeout)
		if err != nil {
			if ctx.Err() == nil {
				span.NoticeError(err)
			}
			return streamed, err
		}

		if !streamed {
			streamed = true
			s.setState(ctx, blockchainDomain.StateStreaming)
			span.AddEvent("streaming")
		}

		if err := s.handle(ctx, raw); err != nil {
			span.NoticeError(err)
			return streamed, err
		}
	}
}

func (s *Supervisor) subscribe(ctx context.Context, sess blockchainApp.Session) (string, error) {
	ctx, span := s.tracer.StartSpanFromContext(ctx, "headlag.subscribe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()

	id, err := sess.Subscribe(ctx)
	if err != nil {
		span.NoticeError(err)
		return "", err
	}

	span.SetAttributes(attribute.String("subscription", id))
	span.SetOK()
	return id, nil
}

// handle decodes, evaluates and records one notification. Decode failures
// are logged and swallowed.
func (s *Supervisor) handle(ctx context.Context, raw []byte) error {
	now := s.now()
	s.metrics.messages.Add(ctx, 1)

	head, err := s.decoder.Decode(raw)
	if err != nil {
		if apperror.IsRecoverableInStream(err) {
			s.metrics.decodeErrors.Add(ctx, 1)
			s.log.Warn(ctx, "dropping undecodable notification", "error", err)
			return nil
		}
		return err
	}

	nowUnix := float64(now.Unix()) + float64(now.Nanosecond())/1e9
	obs := s.evaluator.Evaluate(head, nowUnix)
	s.observer.Observe(obs)

	s.mu.Lock()
	s.status.LastBlock = head.Number
	s.status.LastMessage = now
	s.mu.Unlock()

	if !obs.InWindow {
		s.metrics.staleBlocks.Add(ctx, 1)
	}

	s.log.Info(ctx, "block received",
		"ts", head.Timestamp,
		"block", head.Number,
		"lag", obs.LagString(),
		"miner", head.Miner,
		"in_window", obs.InWindow)

	return nil
}

func (s *Supervisor) fail(ctx context.Context, err error) {
	n := s.restarts.Add(1)

	s.mu.Lock()
	s.status.Restarts = n
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	s.setState(ctx, blockchainDomain.StateFailed)
	s.metrics.restarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(apperror.GetCode(err))),
	))

	if apperror.HasCode(err, apperror.CodeStreamStalled) {
		s.log.Warn(ctx, "session stalled", "error", err, "restarts", n)
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		s.log.Error(ctx, "session failed", "error", err, "restarts", n, "detail", appErr.ToLog())
		return
	}
	s.log.Error(ctx, "session failed", "error", err, "restarts", n)
}

func (s *Supervisor) setState(ctx context.Context, state blockchainDomain.SessionState) {
	s.mu.Lock()
	s.status.State = state
	if state == blockchainDomain.StateStreaming {
		s.status.EverStreamed = true
	}
	s.mu.Unlock()

	s.metrics.sessionState.Record(ctx, state.Value())
}

// Status returns a copy of the current connection status.
func (s *Supervisor) Status() blockchainDomain.ConnectionStatus {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	if br, ok := s.source.(blockchainApp.BreakerReporter); ok {
		st.Breaker = br.BreakerState()
	}
	return st
}

// Ready reports whether the supervisor has streamed at least once.
func (s *Supervisor) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.EverStreamed
}

// Restarts returns the number of sessions that ended.
func (s *Supervisor) Restarts() uint64 {
	return s.restarts.Load()
}
