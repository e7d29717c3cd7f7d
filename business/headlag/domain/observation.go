// Package domain contains the core domain types for the head-lag context.
package domain

import (
	"math/big"

	"github.com/shopspring/decimal"

	blockchainDomain "github.com/fd1az/headlag-exporter/business/blockchain/domain"
)

// DefaultMaxBlockLag is the staleness window in seconds.
const DefaultMaxBlockLag = 60.0

var hundred = decimal.NewFromInt(100)

// LagObservation is the evaluated form of one block head.
type LagObservation struct {
	BlockNumber       uint64
	Timestamp         int64
	LagSeconds        float64 // negative when the producer clock runs ahead
	GasUtilizationPct float64
	HasGasUtilization bool // false when the gas limit is zero
	Miner             string
	InWindow          bool
}

// LagString formats the lag with an explicit sign and four decimals.
func (o LagObservation) LagString() string {
	d := decimal.NewFromFloat(o.LagSeconds).StringFixed(4)
	if o.LagSeconds >= 0 {
		return "+" + d
	}
	return d
}

// Evaluator computes lag and gas utilization. It holds no state besides its
// window and is safe for concurrent use.
type Evaluator struct {
	maxBlockLag float64
}

// NewEvaluator creates an Evaluator. A non-positive window falls back to
// DefaultMaxBlockLag.
func NewEvaluator(maxBlockLag float64) Evaluator {
	if maxBlockLag <= 0 {
		maxBlockLag = DefaultMaxBlockLag
	}
	return Evaluator{maxBlockLag: maxBlockLag}
}

// Evaluate derives the observation for head as seen at nowUnix.
func (e Evaluator) Evaluate(head blockchainDomain.BlockHead, nowUnix float64) LagObservation {
	lag := nowUnix - float64(head.Timestamp)

	obs := LagObservation{
		BlockNumber: head.Number,
		Timestamp:   head.Timestamp,
		LagSeconds:  lag,
		Miner:       head.Miner,
		InWindow:    lag < e.maxBlockLag,
	}

	if head.GasLimit != 0 {
		obs.GasUtilizationPct = GasUtilizationPct(head.GasUsed, head.GasLimit)
		obs.HasGasUtilization = true
	}

	return obs
}

// GasUtilizationPct returns used*100/limit computed in decimal so the
// percentage is exact before the final float conversion. limit must be
// non-zero.
func GasUtilizationPct(used, limit uint64) float64 {
	u := decimal.NewFromBigInt(new(big.Int).SetUint64(used), 0)
	l := decimal.NewFromBigInt(new(big.Int).SetUint64(limit), 0)

	pct, _ := u.Mul(hundred).Div(l).Float64()
	return pct
}
