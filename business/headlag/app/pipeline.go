package app

import (
	"context"
	"errors"
	"sync"

	"github.com/fd1az/headlag-exporter/internal/logger"
)

// Runner is a long-running loop that exits when its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Pipeline owns the ingestion goroutine.
type Pipeline struct {
	runner Runner
	log    logger.LoggerInterface
}

// NewPipeline creates a pipeline around runner, usually a *Supervisor.
func NewPipeline(runner Runner, log logger.LoggerInterface) *Pipeline {
	return &Pipeline{runner: runner, log: log}
}

// Handle controls a started pipeline.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start launches the runner in its own goroutine. Cancelling ctx has the
// same effect as Handle.Stop without the wait.
func (p *Pipeline) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.log.Info(ctx, "pipeline starting")

	go func() {
		defer close(h.done)

		err := p.runner.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		h.mu.Lock()
		h.err = err
		h.mu.Unlock()

		if err != nil {
			p.log.Error(context.Background(), "pipeline exited", "error", err)
			return
		}
		p.log.Info(context.Background(), "pipeline stopped")
	}()

	return h
}

// Stop cancels the pipeline and blocks until the runner has returned and
// its session is closed. Safe to call more than once.
func (h *Handle) Stop() error {
	h.cancel()
	<-h.done
	return h.Err()
}

// Done is closed once the runner has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the runner's exit error. Cancellation is not an error.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
