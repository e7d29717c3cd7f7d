// Package app contains the ingestion supervisor and pipeline for the head-lag context.
package app

import (
	"github.com/fd1az/headlag-exporter/business/headlag/domain"
)

// Observer receives every evaluated block head in receive order.
type Observer interface {
	Observe(obs domain.LagObservation)
}

// SnapshotReader exposes a consistent view of the aggregated series.
type SnapshotReader interface {
	Snapshot() domain.Snapshot
}

// Aggregator is the single sink the supervisor feeds and readers poll.
type Aggregator interface {
	Observer
	SnapshotReader
}
