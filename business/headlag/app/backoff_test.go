package app

import (
	"testing"
	"time"
)

func TestBackoff_Flat(t *testing.T) {
	b := NewBackoff(BackoffFlat, 2*time.Second, time.Minute, 0.5)

	for n := 1; n <= 10; n++ {
		if d := b.Delay(n); d != 2*time.Second {
			t.Errorf("Delay(%d) = %s, want 2s", n, d)
		}
	}
}

func TestBackoff_Exponential(t *testing.T) {
	b := NewBackoff(BackoffExponential, time.Second, 10*time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b := NewBackoff(BackoffExponential, time.Second, 0, 0.2)

	b.rand = func() float64 { return 0 }
	if got := b.Delay(1); got != 800*time.Millisecond {
		t.Errorf("low jitter = %s", got)
	}

	b.rand = func() float64 { return 0.5 }
	if got := b.Delay(1); got != time.Second {
		t.Errorf("mid jitter = %s", got)
	}

	b.rand = rand01
	for i := 0; i < 100; i++ {
		d := b.Delay(3)
		if d < 3200*time.Millisecond || d >= 4800*time.Millisecond {
			t.Fatalf("jittered delay %s out of range", d)
		}
	}
}

func rand01() float64 { return 0.999 }
