// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"time"

	"github.com/fd1az/headlag-exporter/business/blockchain/domain"
)

// HeadSource opens upstream sessions.
type HeadSource interface {
	// Open completes the transport handshake. Failures are CONNECT_FAILED.
	Open(ctx context.Context) (Session, error)

	// Name identifies the source in logs and traces.
	Name() string
}

// Session is one live upstream connection.
type Session interface {
	// Subscribe requests newHeads and waits for the acknowledgment. It
	// returns the subscription id or SUBSCRIBE_FAILED.
	Subscribe(ctx context.Context) (string, error)

	// Next blocks until a notification arrives. It fails with
	// STREAM_STALLED after timeout and CONNECTION_CLOSED when the transport
	// ends. A cancelled ctx returns ctx.Err().
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// BreakerReporter is implemented by sources guarded by a circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// HeadDecoder turns one raw notification into a BlockHead or DECODE_FAILED.
type HeadDecoder interface {
	Decode(raw []byte) (domain.BlockHead, error)
}
