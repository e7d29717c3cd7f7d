package ui

import (
	blockchainDomain "github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
)

// Source is what the dashboard polls on every tick.
type Source interface {
	Snapshot() domain.Snapshot
	Status() blockchainDomain.ConnectionStatus
}

// sourceFunc adapts a pair of functions to Source.
type sourceFunc struct {
	snapshot func() domain.Snapshot
	status   func() blockchainDomain.ConnectionStatus
}

func (s sourceFunc) Snapshot() domain.Snapshot                 { return s.snapshot() }
func (s sourceFunc) Status() blockchainDomain.ConnectionStatus { return s.status() }

// NewSource combines an aggregator and a supervisor into a Source.
func NewSource(snapshot func() domain.Snapshot, status func() blockchainDomain.ConnectionStatus) Source {
	return sourceFunc{snapshot: snapshot, status: status}
}
