package app

import (
	"context"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/headlag-exporter/internal/apperror"
	"github.com/fd1az/headlag-exporter/internal/circuitbreaker"
	"github.com/fd1az/headlag-exporter/internal/logger"
)

// GuardedSource routes Open through a circuit breaker so a node that keeps
// refusing connections is left alone for the breaker timeout.
type GuardedSource struct {
	source HeadSource
	cb     *circuitbreaker.CircuitBreaker[Session]
}

var (
	_ HeadSource      = (*GuardedSource)(nil)
	_ BreakerReporter = (*GuardedSource)(nil)
)

// NewGuardedSource wraps source with a breaker built from cfg. cfg.Name
// defaults to the source name.
func NewGuardedSource(source HeadSource, cfg circuitbreaker.Config, log logger.LoggerInterface) *GuardedSource {
	if cfg.Name == "" {
		cfg.Name = source.Name()
	}
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &GuardedSource{
		source: source,
		cb:     circuitbreaker.New[Session](cfg),
	}
}

// Open implements HeadSource. A rejected attempt is still CONNECT_FAILED,
// with CIRCUIT_OPEN as its cause.
func (g *GuardedSource) Open(ctx context.Context) (Session, error) {
	sess, err := g.cb.Execute(func() (Session, error) {
		return g.source.Open(ctx)
	})
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeCircuitOpen {
			return nil, apperror.New(apperror.CodeConnectFailed,
				apperror.WithCause(err),
				apperror.WithContext(g.source.Name()))
		}
		return nil, err
	}
	return sess, nil
}

// Name implements HeadSource.
func (g *GuardedSource) Name() string {
	return g.source.Name()
}

// BreakerState implements BreakerReporter.
func (g *GuardedSource) BreakerState() string {
	return g.cb.State().String()
}
