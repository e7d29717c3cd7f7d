package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fd1az/headlag-exporter/internal/apperror"
	"github.com/fd1az/headlag-exporter/internal/circuitbreaker"
	"github.com/fd1az/headlag-exporter/internal/logger"
)

type refusingSource struct {
	calls int
}

func (s *refusingSource) Open(context.Context) (Session, error) {
	s.calls++
	return nil, apperror.New(apperror.CodeConnectFailed, apperror.WithCause(errors.New("connection refused")))
}

func (s *refusingSource) Name() string { return "test-node" }

func TestGuardedSource_OpenBreakerStillConnectFailed(t *testing.T) {
	src := &refusingSource{}
	cfg := circuitbreaker.DefaultConfig("")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour

	g := NewGuardedSource(src, cfg, logger.NewDiscard())

	for i := 0; i < 2; i++ {
		if _, err := g.Open(context.Background()); apperror.GetCode(err) != apperror.CodeConnectFailed {
			t.Fatalf("attempt %d: expected CONNECT_FAILED, got %v", i, err)
		}
	}
	if g.BreakerState() != "open" {
		t.Fatalf("expected open breaker, got %s", g.BreakerState())
	}

	_, err := g.Open(context.Background())
	if apperror.GetCode(err) != apperror.CodeConnectFailed {
		t.Fatalf("expected CONNECT_FAILED while open, got %v", err)
	}
	if !apperror.HasCode(err, apperror.CodeCircuitOpen) {
		t.Errorf("expected CIRCUIT_OPEN cause, got %v", err)
	}
	if src.calls != 2 {
		t.Errorf("source must not be dialed while open, calls=%d", src.calls)
	}
	if g.Name() != "test-node" {
		t.Errorf("unexpected name %q", g.Name())
	}
}
