package app

import (
	"math/rand/v2"
	"time"
)

// Backoff strategies.
const (
	BackoffFlat        = "flat"
	BackoffExponential = "exponential"
)

// Backoff computes the wait before reconnect attempt n (1-based).
type Backoff struct {
	Strategy string
	Base     time.Duration
	Max      time.Duration
	Jitter   float64 // fraction of the delay, applied as +/-

	rand func() float64 // [0,1)
}

// NewBackoff returns a backoff policy. Unknown strategies behave as flat.
func NewBackoff(strategy string, base, maxDelay time.Duration, jitter float64) Backoff {
	return Backoff{
		Strategy: strategy,
		Base:     base,
		Max:      maxDelay,
		Jitter:   jitter,
		rand:     rand.Float64,
	}
}

// Delay returns the wait before attempt n.
func (b Backoff) Delay(n int) time.Duration {
	if b.Strategy != BackoffExponential {
		return b.Base
	}
	if n < 1 {
		n = 1
	}

	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 && b.rand != nil {
		// spread uniformly over [d*(1-j), d*(1+j))
		f := 1 + b.Jitter*(2*b.rand()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}
