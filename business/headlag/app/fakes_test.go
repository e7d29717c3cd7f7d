package app

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	blockchainApp "github.com/fd1az/headlag-exporter/business/blockchain/app"
	blockchainDomain "github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/internal/apperror"
)

// step is one scripted result of Session.Next.
type step struct {
	raw string
	err error
}

type fakeSession struct {
	subErr error
	steps  chan step
	closed atomic.Bool
}

func newFakeSession(steps ...step) *fakeSession {
	s := &fakeSession{steps: make(chan step, len(steps)+1)}
	for _, st := range steps {
		s.steps <- st
	}
	return s
}

func (s *fakeSession) Subscribe(ctx context.Context) (string, error) {
	if s.subErr != nil {
		return "", s.subErr
	}
	return "0xsub", nil
}

// Next replays the script and then blocks until ctx is done, like a quiet
// but healthy upstream.
func (s *fakeSession) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case st := <-s.steps:
		if st.err != nil {
			return nil, st.err
		}
		return []byte(st.raw), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeSource hands out scripted sessions in order. An entry with a nil
// session fails Open with openErr.
type fakeSource struct {
	mu       sync.Mutex
	sessions []*fakeSession
	opens    int
	openedAt []time.Time
}

func (f *fakeSource) Open(ctx context.Context) (blockchainApp.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens++
	f.openedAt = append(f.openedAt, time.Now())
	if len(f.sessions) == 0 {
		return newFakeSession(), nil
	}
	sess := f.sessions[0]
	f.sessions = f.sessions[1:]
	if sess == nil {
		return nil, apperror.New(apperror.CodeConnectFailed, apperror.WithContext("refused"))
	}
	return sess, nil
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Gap returns the time between dial i-1 and dial i.
func (f *fakeSource) Gap(i int) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openedAt[i].Sub(f.openedAt[i-1])
}

// fakeDecoder turns "<number>" into a head declared at ts 100000000 and
// anything else into DECODE_FAILED.
type fakeDecoder struct{}

func (fakeDecoder) Decode(raw []byte) (blockchainDomain.BlockHead, error) {
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return blockchainDomain.BlockHead{}, apperror.New(apperror.CodeDecodeFailed, apperror.WithCause(err))
	}
	return blockchainDomain.BlockHead{
		Number:    n,
		Timestamp: 100000000,
		Miner:     "0xabc",
		GasUsed:   5000000,
		GasLimit:  10000000,
	}, nil
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []domain.LagObservation
}

func (r *recordingObserver) Observe(obs domain.LagObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, obs)
}

func (r *recordingObserver) All() []domain.LagObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LagObservation(nil), r.obs...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
