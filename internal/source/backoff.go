package source

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is the reconnect delay policy of a source. The delay before
// attempt n is Min*Multiplier^(n-1) plus up to Jitter*delay of random
// spread, capped at Max. Multiplier 1 (or a Max not above Min) gives a
// flat delay.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoff waits 3s after the first failure and doubles up to 60s.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:        3 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Next returns the delay before reconnect attempt n (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	lo := b.Min
	if lo <= 0 {
		lo = DefaultBackoff().Min
	}
	hi := max(b.Max, lo)
	mult := b.Multiplier
	if math.IsNaN(mult) || mult < 1 {
		mult = 1
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(lo) * math.Pow(mult, float64(attempt-1))
	if b.Jitter > 0 {
		d += d * min(b.Jitter, 1) * rand.Float64()
	}
	if d > float64(hi) || math.IsInf(d, 0) {
		d = float64(hi)
	}
	return time.Duration(d)
}
