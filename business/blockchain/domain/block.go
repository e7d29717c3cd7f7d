// Package domain contains the core domain types for the blockchain context.
package domain

import "time"

// BlockHead is the subset of a newHeads notification the exporter consumes.
// It is built once per message and never mutated.
type BlockHead struct {
	Number    uint64
	Timestamp int64 // unix seconds, as declared by the producer
	Miner     string
	GasUsed   uint64
	GasLimit  uint64
	Hash      string // informational only
}

// SessionState is the lifecycle of one upstream subscription.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateSubscribed SessionState = "subscribed"
	StateStreaming  SessionState = "streaming"
	StateFailed     SessionState = "failed"
)

// Value maps the state to the number exported on the state gauge.
func (s SessionState) Value() int64 {
	switch s {
	case StateConnecting:
		return 0
	case StateSubscribed:
		return 1
	case StateStreaming:
		return 2
	case StateFailed:
		return 3
	}
	return -1
}

// ConnectionStatus contains detailed connection information.
type ConnectionStatus struct {
	State          SessionState
	Source         string
	SubscriptionID string
	Restarts       uint64
	LastBlock      uint64
	LastMessage    time.Time
	LastError      string
	EverStreamed   bool
	Breaker        string // circuit breaker state, empty when unguarded
}
