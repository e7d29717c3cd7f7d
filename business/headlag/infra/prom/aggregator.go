// Package prom implements the lag aggregator on Prometheus collectors.
package prom

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/internal/apperror"
)

// OtherMiner collects miners seen after the series cap is reached.
const OtherMiner = "_other"

const minerLabel = "miner"

// Config holds aggregator settings.
type Config struct {
	Buckets        []float64 // strictly ascending; a trailing +Inf is ignored
	MaxMinerSeries int       // 0 = unbounded
}

// Aggregator owns the exported lag series. Observe is called from the single
// ingestion goroutine; Snapshot and scrapes may run concurrently with it.
type Aggregator struct {
	lag       prometheus.Histogram
	lastLag   prometheus.Gauge
	gasPct    prometheus.Gauge
	lastBlock prometheus.Gauge
	miners    *prometheus.HistogramVec

	mu        sync.Mutex
	seen      map[string]struct{}
	maxMiners int

	hasLast atomic.Bool
	stale   atomic.Uint64
}

// New builds the collectors and registers the global series into global and
// the per-miner histogram into miners.
func New(cfg Config, global, miners prometheus.Registerer) (*Aggregator, error) {
	buckets, err := validateBuckets(cfg.Buckets)
	if err != nil {
		return nil, err
	}
	if cfg.MaxMinerSeries < 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "max miner series cannot be negative")
	}

	a := &Aggregator{
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "head_lag_seconds",
			Help:    "Delay between a block's declared timestamp and its local observation.",
			Buckets: buckets,
		}),
		lastLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "head_lag_seconds_last",
			Help: "Lag of the most recent in-window block.",
		}),
		gasPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "head_gas_utilization_percent_last",
			Help: "Gas used as a percentage of the gas limit for the most recent in-window block.",
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "head_block_number_last",
			Help: "Number of the most recent in-window block.",
		}),
		miners: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "head_lag_seconds",
			Help:    "Delay between a block's declared timestamp and its local observation, per miner.",
			Buckets: buckets,
		}, []string{minerLabel}),
		seen:      make(map[string]struct{}),
		maxMiners: cfg.MaxMinerSeries,
	}

	for _, c := range []prometheus.Collector{a.lag, a.lastLag, a.gasPct, a.lastBlock} {
		if err := global.Register(c); err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithCause(err),
				apperror.WithContext("register lag collectors"))
		}
	}
	if err := miners.Register(a.miners); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("register miner collector"))
	}

	return a, nil
}

// Observe records obs. Out-of-window observations only move the stale count.
func (a *Aggregator) Observe(obs domain.LagObservation) {
	if !obs.InWindow {
		a.stale.Add(1)
		return
	}

	a.lag.Observe(obs.LagSeconds)
	a.miners.WithLabelValues(a.minerSeries(obs.Miner)).Observe(obs.LagSeconds)

	a.lastLag.Set(obs.LagSeconds)
	a.lastBlock.Set(float64(obs.BlockNumber))
	if obs.HasGasUtilization {
		a.gasPct.Set(obs.GasUtilizationPct)
	}
	a.hasLast.Store(true)
}

// Snapshot returns a point-in-time copy of every series.
func (a *Aggregator) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Lag:               readHistogram(a.lag),
		LastLag:           readGauge(a.lastLag),
		HasLastLag:        a.hasLast.Load(),
		GasUtilizationPct: readGauge(a.gasPct),
		LastBlock:         uint64(readGauge(a.lastBlock)),
		Miners:            make(map[string]domain.HistogramSnapshot),
		Stale:             a.stale.Load(),
	}

	ch := make(chan prometheus.Metric)
	go func() {
		a.miners.Collect(ch)
		close(ch)
	}()

	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		for _, lp := range pb.GetLabel() {
			if lp.GetName() == minerLabel {
				snap.Miners[lp.GetValue()] = fromDTO(pb.GetHistogram())
			}
		}
	}

	return snap
}

// MinerSeries returns the number of distinct miner series, excluding the
// overflow series.
func (a *Aggregator) MinerSeries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// minerSeries maps a raw miner to its label value, creating the series on
// first sight unless the cap is reached.
func (a *Aggregator) minerSeries(raw string) string {
	miner := NormalizeMiner(raw)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[miner]; ok {
		return miner
	}
	if a.maxMiners > 0 && len(a.seen) >= a.maxMiners {
		return OtherMiner
	}
	a.seen[miner] = struct{}{}
	return miner
}

// NormalizeMiner lower-cases miner identifiers and canonicalizes 20-byte
// addresses so the same producer always maps to one series.
func NormalizeMiner(raw string) string {
	m := strings.TrimSpace(raw)
	if common.IsHexAddress(m) {
		return strings.ToLower(common.HexToAddress(m).Hex())
	}
	return strings.ToLower(m)
}

func validateBuckets(in []float64) ([]float64, error) {
	out := make([]float64, 0, len(in))
	for i, b := range in {
		if math.IsInf(b, 1) && i == len(in)-1 {
			break
		}
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, apperror.New(apperror.CodeInvalidBuckets,
				apperror.WithContext(fmt.Sprintf("bucket %d is %v", i, b)))
		}
		if len(out) > 0 && b <= out[len(out)-1] {
			return nil, apperror.New(apperror.CodeInvalidBuckets,
				apperror.WithContext(fmt.Sprintf("bucket %v not greater than %v", b, out[len(out)-1])))
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, apperror.New(apperror.CodeInvalidBuckets,
			apperror.WithContext("no finite buckets"))
	}
	return out, nil
}

func readHistogram(h prometheus.Histogram) domain.HistogramSnapshot {
	var pb dto.Metric
	if err := h.Write(&pb); err != nil {
		return domain.HistogramSnapshot{}
	}
	return fromDTO(pb.GetHistogram())
}

func readGauge(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}

func fromDTO(h *dto.Histogram) domain.HistogramSnapshot {
	snap := domain.HistogramSnapshot{
		Count:   h.GetSampleCount(),
		Sum:     h.GetSampleSum(),
		Buckets: make([]domain.Bucket, 0, len(h.GetBucket())+1),
	}
	for _, b := range h.GetBucket() {
		snap.Buckets = append(snap.Buckets, domain.Bucket{
			UpperBound: b.GetUpperBound(),
			Count:      b.GetCumulativeCount(),
		})
	}
	snap.Buckets = append(snap.Buckets, domain.Bucket{
		UpperBound: math.Inf(1),
		Count:      snap.Count,
	})
	return snap
}
