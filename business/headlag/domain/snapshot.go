package domain

import "math"

// Bucket is one cumulative histogram bucket.
type Bucket struct {
	UpperBound float64
	Count      uint64 // observations <= UpperBound
}

// HistogramSnapshot is a consistent copy of one histogram. Buckets always
// end with the +Inf bucket, whose count equals Count.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets []Bucket
}

// PerBucket returns the non-cumulative count of each bucket.
func (h HistogramSnapshot) PerBucket() []uint64 {
	out := make([]uint64, len(h.Buckets))
	var prev uint64
	for i, b := range h.Buckets {
		out[i] = b.Count - prev
		prev = b.Count
	}
	return out
}

// Mean returns Sum/Count, or 0 for an empty histogram.
func (h HistogramSnapshot) Mean() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / float64(h.Count)
}

// Quantile estimates the q-quantile by linear interpolation inside the
// bucket that crosses the rank, the same way PromQL histogram_quantile does.
func (h HistogramSnapshot) Quantile(q float64) float64 {
	if h.Count == 0 || len(h.Buckets) == 0 {
		return math.NaN()
	}

	rank := q * float64(h.Count)
	var lowerBound float64
	var lowerCount uint64

	for i, b := range h.Buckets {
		if float64(b.Count) >= rank {
			if math.IsInf(b.UpperBound, 1) {
				// Open-ended bucket: the best answer is the last finite bound.
				if i == 0 {
					return math.NaN()
				}
				return h.Buckets[i-1].UpperBound
			}
			inBucket := b.Count - lowerCount
			if inBucket == 0 {
				return b.UpperBound
			}
			return lowerBound + (b.UpperBound-lowerBound)*(rank-float64(lowerCount))/float64(inBucket)
		}
		lowerBound = b.UpperBound
		lowerCount = b.Count
	}
	return h.Buckets[len(h.Buckets)-1].UpperBound
}

// Snapshot is a point-in-time view of the aggregator.
type Snapshot struct {
	Lag               HistogramSnapshot
	LastLag           float64
	HasLastLag        bool
	GasUtilizationPct float64
	LastBlock         uint64
	Miners            map[string]HistogramSnapshot
	Stale             uint64 // observations outside the window
}
