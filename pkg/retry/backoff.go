package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before the given attempt (1-based)
type BackoffStrategy interface {
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval before every attempt
type ConstantBackoff struct {
	Interval time.Duration
}

func (b *ConstantBackoff) NextBackoff(attempt int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the delay by Multiplier per attempt, adds up to
// JitterFactor of random jitter and caps the result at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))

	if b.JitterFactor > 0 {
		backoff += rand.Float64() * b.JitterFactor * backoff
	}

	if backoff > float64(b.MaxInterval) {
		backoff = float64(b.MaxInterval)
	}

	return time.Duration(backoff)
}

// NewOutboxBackoff is the redelivery schedule for outbox messages
func NewOutboxBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 5 * time.Second,
		MaxInterval:     10 * time.Minute,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
}
