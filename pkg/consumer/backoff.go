package consumer

import (
	"math/rand"
	"time"
)

// backoff produces exponentially growing retry waits with a little jitter,
// used whenever a store call fails and the loop must try again.
type backoff struct {
	current time.Duration
	min     time.Duration
	max     time.Duration
	factor  float64
}

func newBackoff(min, max time.Duration) *backoff {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = 10 * min
	}
	return &backoff{current: min, min: min, max: max, factor: 2.0}
}

func (b *backoff) duration() time.Duration {
	jitter := time.Duration(0)
	if n := int64(b.current) / 10; n > 0 {
		jitter = time.Duration(rand.Int63n(n))
	}
	d := b.current + jitter

	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.min
}
