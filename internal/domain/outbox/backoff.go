package outbox

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: Base doubled per retry, capped at Max,
// with +/-20% jitter so poller instances do not retry in lockstep.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay before the given retry attempt (1-based).
func (b Backoff) Next(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	d := b.Base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}

	// Jitter in [0.8d, 1.2d).
	jitter := time.Duration(rand.Int63n(int64(d)*2/5 + 1))
	return d*4/5 + jitter
}
