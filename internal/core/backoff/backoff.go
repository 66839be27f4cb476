// Package backoff computes retry delays for the sync worker.
package backoff

import (
	"math/rand"
	"time"
)

// Policy is an exponential backoff with a bounded maximum and jitter.
// Delay grows with consecutive failures and resets on any success.
type Policy struct {
	// Base is the delay after the first failure.
	Base time.Duration
	// Max caps the exponential growth.
	Max time.Duration
	// Jitter is the fraction of the delay randomized on top (0 to 1).
	// Spreads reconnect storms from terminals that lost power together.
	Jitter float64
}

// Delay returns the backoff delay after the given number of consecutive
// failures. failures <= 1 yields Base; each further failure doubles the
// delay, plus jitter. Max is a hard bound, jitter included.
func (p Policy) Delay(failures int) time.Duration {
	d := p.delayNoJitter(failures)
	if p.Jitter <= 0 {
		return d
	}

	d += time.Duration(float64(d) * p.Jitter * rand.Float64())
	if d > p.Max {
		return p.Max
	}
	return d
}

// delayNoJitter is the deterministic exponential component.
func (p Policy) delayNoJitter(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	d := p.Base
	for i := 1; i < failures; i++ {
		if d >= p.Max {
			return p.Max
		}
		d *= 2
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
