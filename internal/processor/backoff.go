package processor

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is an exponential backoff policy with jitter.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps every delay, jitter included.
	Max time.Duration
	// Factor multiplies the delay after each attempt. Values below 1 are
	// treated as 1.
	Factor float64
	// Jitter randomizes each delay by up to +/- Jitter*delay (0.0-1.0).
	Jitter float64
}

// DefaultRetryBackoff spaces handler retries for externally rate-limited
// downstream services.
var DefaultRetryBackoff = Backoff{
	Initial: 2 * time.Second,
	Max:     2 * time.Minute,
	Factor:  4,
	Jitter:  0.2,
}

// DefaultTransportBackoff is applied when the queue itself is unreachable.
var DefaultTransportBackoff = Backoff{
	Initial: 500 * time.Millisecond,
	Max:     30 * time.Second,
	Factor:  2,
	Jitter:  0.1,
}

// Delay returns the wait before the given attempt. attempt is 1-based; a
// zero Backoff yields no delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	limit := float64(b.Max)
	if b.Max <= 0 {
		limit = float64(math.MaxInt64)
	}
	if d > limit {
		d = limit
	}

	if b.Jitter > 0 {
		j := min(b.Jitter, 1)
		d += d * j * (rand.Float64()*2 - 1)
	}
	if d > limit {
		d = limit
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
