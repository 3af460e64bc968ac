// Package backoff implements the delay policy applied between retry attempts.
package backoff

import (
	"math"
	"time"
)

// DefaultBase is the delay before the first retry.
const DefaultBase = 1000 * time.Millisecond

// Policy maps an attempt number to the wait duration before the next attempt.
// Delays grow exponentially from Base: Base, 2*Base, 4*Base, and so on.
// Growth is unbounded unless Max is set.
type Policy struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration

	// Max caps the computed delay. Zero disables the cap.
	Max time.Duration
}

// Default returns the standard policy: 1s base, no cap.
func Default() Policy {
	return Policy{Base: DefaultBase}
}

// Delay returns the wait duration after the given attempt (1-based).
// Attempts below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d <= 0 {
		// Overflow of the duration type at absurd attempt counts.
		d = math.MaxInt64
	}

	if p.Max > 0 && d > p.Max {
		d = p.Max
	}

	return d
}
