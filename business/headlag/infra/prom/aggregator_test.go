package prom

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fd1az/headlag-exporter/business/headlag/domain"
	"github.com/fd1az/headlag-exporter/internal/apperror"
)

var testBuckets = []float64{0.5, 1, 2, 4, 8, 16, math.Inf(1)}

func newTestAggregator(t *testing.T, maxMiners int) (*Aggregator, *prometheus.Registry, *prometheus.Registry) {
	t.Helper()

	global := prometheus.NewRegistry()
	miners := prometheus.NewRegistry()

	a, err := New(Config{Buckets: testBuckets, MaxMinerSeries: maxMiners}, global, miners)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, global, miners
}

func inWindow(lag float64, miner string) domain.LagObservation {
	return domain.LagObservation{
		BlockNumber:       16,
		LagSeconds:        lag,
		GasUtilizationPct: 50,
		HasGasUtilization: true,
		Miner:             miner,
		InWindow:          true,
	}
}

func TestAggregator_ObserveInWindow(t *testing.T) {
	a, global, miners := newTestAggregator(t, 0)

	a.Observe(inWindow(10, "0xabc"))

	snap := a.Snapshot()
	if snap.Lag.Count != 1 || snap.Lag.Sum != 10 {
		t.Errorf("global histogram = %+v", snap.Lag)
	}
	if snap.LastLag != 10 || !snap.HasLastLag {
		t.Errorf("last lag = %v (%v)", snap.LastLag, snap.HasLastLag)
	}
	if snap.GasUtilizationPct != 50 || snap.LastBlock != 16 {
		t.Errorf("gauges = gas %v block %v", snap.GasUtilizationPct, snap.LastBlock)
	}
	if m, ok := snap.Miners["0xabc"]; !ok || m.Count != 1 {
		t.Errorf("miner series = %+v", snap.Miners)
	}

	if got := testutil.ToFloat64(a.lastLag); got != 10 {
		t.Errorf("exported gauge = %v", got)
	}
	if n := testutil.CollectAndCount(a.miners); n != 1 {
		t.Errorf("expected one miner series, got %d", n)
	}

	expected := `
# HELP head_lag_seconds_last Lag of the most recent in-window block.
# TYPE head_lag_seconds_last gauge
head_lag_seconds_last 10
`
	if err := testutil.GatherAndCompare(global, strings.NewReader(expected), "head_lag_seconds_last"); err != nil {
		t.Error(err)
	}

	families, err := miners.Gather()
	if err != nil {
		t.Fatalf("gather miners: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "head_lag_seconds" {
		t.Fatalf("miner registry must only expose head_lag_seconds, got %d families", len(families))
	}
}

func TestAggregator_StaleLeavesSeriesUntouched(t *testing.T) {
	a, _, _ := newTestAggregator(t, 0)

	a.Observe(inWindow(3, "0xabc"))
	before := a.Snapshot()

	a.Observe(domain.LagObservation{
		BlockNumber:       17,
		LagSeconds:        120,
		GasUtilizationPct: 99,
		HasGasUtilization: true,
		Miner:             "0xdef",
		InWindow:          false,
	})

	after := a.Snapshot()
	if after.Lag.Count != before.Lag.Count || after.Lag.Sum != before.Lag.Sum {
		t.Errorf("stale block moved the histogram: %+v -> %+v", before.Lag, after.Lag)
	}
	if after.LastLag != 3 || after.GasUtilizationPct != 50 || after.LastBlock != 16 {
		t.Errorf("stale block moved a gauge: %+v", after)
	}
	if _, ok := after.Miners["0xdef"]; ok {
		t.Error("stale block created a miner series")
	}
	if after.Stale != 1 {
		t.Errorf("stale = %d", after.Stale)
	}
}

func TestAggregator_ZeroGasLimitKeepsGasGauge(t *testing.T) {
	a, _, _ := newTestAggregator(t, 0)

	a.Observe(inWindow(1, "m"))
	obs := inWindow(2, "m")
	obs.HasGasUtilization = false
	obs.GasUtilizationPct = 0
	a.Observe(obs)

	snap := a.Snapshot()
	if snap.GasUtilizationPct != 50 {
		t.Errorf("gas gauge = %v, want previous 50", snap.GasUtilizationPct)
	}
	if snap.LastLag != 2 {
		t.Errorf("last lag = %v", snap.LastLag)
	}
}

func TestAggregator_BucketsMonotonic(t *testing.T) {
	a, _, _ := newTestAggregator(t, 0)

	lags := []float64{0.1, 0.5, 0.7, 1.5, 3, 3, 7, 12, 40, -2}
	for _, l := range lags {
		a.Observe(inWindow(l, "m"))
	}

	snap := a.Snapshot()
	if snap.Lag.Count != uint64(len(lags)) {
		t.Fatalf("count = %d, want %d", snap.Lag.Count, len(lags))
	}

	last := snap.Lag.Buckets[len(snap.Lag.Buckets)-1]
	if !math.IsInf(last.UpperBound, 1) || last.Count != snap.Lag.Count {
		t.Errorf("+Inf bucket = %+v", last)
	}

	for i := 1; i < len(snap.Lag.Buckets); i++ {
		if snap.Lag.Buckets[i].Count < snap.Lag.Buckets[i-1].Count {
			t.Errorf("bucket %d not monotonic: %+v", i, snap.Lag.Buckets)
		}
	}

	var total uint64
	for _, n := range snap.Lag.PerBucket() {
		total += n
	}
	if total != uint64(len(lags)) {
		t.Errorf("per-bucket total = %d", total)
	}

	// 0.1, 0.5 and -2 fall in the first bucket (<= 0.5).
	if snap.Lag.Buckets[0].Count != 3 {
		t.Errorf("first bucket = %d, want 3", snap.Lag.Buckets[0].Count)
	}
}

func TestAggregator_ConcurrentObserveAndSnapshot(t *testing.T) {
	a, _, _ := newTestAggregator(t, 0)

	const m = 500
	var wg sync.WaitGroup

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := a.Snapshot()
			for i := 1; i < len(snap.Lag.Buckets); i++ {
				if snap.Lag.Buckets[i].Count < snap.Lag.Buckets[i-1].Count {
					t.Errorf("torn snapshot: %+v", snap.Lag.Buckets)
					return
				}
			}
		}
	}()

	for i := 0; i < m; i++ {
		a.Observe(inWindow(float64(i%20), "0xabc"))
	}
	close(stop)
	wg.Wait()

	snap := a.Snapshot()
	if snap.Lag.Count != m {
		t.Errorf("count = %d, want %d", snap.Lag.Count, m)
	}
	if snap.Miners["0xabc"].Count != m {
		t.Errorf("miner count = %d, want %d", snap.Miners["0xabc"].Count, m)
	}
}

func TestAggregator_MinerCap(t *testing.T) {
	a, _, _ := newTestAggregator(t, 2)

	for _, miner := range []string{"a", "b", "c", "d", "a"} {
		a.Observe(inWindow(1, miner))
	}

	snap := a.Snapshot()
	if snap.Miners["a"].Count != 2 || snap.Miners["b"].Count != 1 {
		t.Errorf("tracked miners = %+v", snap.Miners)
	}
	if snap.Miners[OtherMiner].Count != 2 {
		t.Errorf("overflow series = %+v", snap.Miners[OtherMiner])
	}
	if a.MinerSeries() != 2 {
		t.Errorf("MinerSeries = %d", a.MinerSeries())
	}
}

func TestNormalizeMiner(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0xABC", "0xabc"},
		{" 0xabc ", "0xabc"},
		{"0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5", "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"},
		{"95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5", "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"},
		{"Validator-7", "validator-7"},
	}

	for _, tt := range tests {
		if got := NormalizeMiner(tt.in); got != tt.want {
			t.Errorf("NormalizeMiner(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		buckets []float64
		code    apperror.Code
	}{
		{"descending", []float64{2, 1}, apperror.CodeInvalidBuckets},
		{"duplicate", []float64{1, 1}, apperror.CodeInvalidBuckets},
		{"inf only", []float64{math.Inf(1)}, apperror.CodeInvalidBuckets},
		{"nan", []float64{math.NaN()}, apperror.CodeInvalidBuckets},
		{"empty", nil, apperror.CodeInvalidBuckets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Buckets: tt.buckets}, prometheus.NewRegistry(), prometheus.NewRegistry())
			if apperror.GetCode(err) != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	global := prometheus.NewRegistry()

	if _, err := New(Config{Buckets: testBuckets}, global, prometheus.NewRegistry()); err != nil {
		t.Fatalf("first New failed: %v", err)
	}
	_, err := New(Config{Buckets: testBuckets}, global, prometheus.NewRegistry())
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
}
