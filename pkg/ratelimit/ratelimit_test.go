package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(2, 1, clock.Now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(time.Hour)
	assert.True(t, tb.Full())
	assert.Equal(t, 2.0, tb.Available())
}

func TestIPRateLimiter_PerIP(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := newIPRateLimiter(1, 0.01, clock.Now)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := newIPRateLimiter(1, 1, clock.Now)

	l.Allow("10.0.0.1")
	clock.Advance(20 * time.Minute)
	l.Allow("10.0.0.2")
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, l.evictIdle())
	assert.Equal(t, 1, l.Size())

	l.Stop()
	l.Stop()
}

func TestIPRateLimiter_KeepsIdleBucketUntilRefilled(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	// one token per hour
	l := newIPRateLimiter(1, 1.0/3600, clock.Now)

	assert.True(t, l.Allow("10.0.0.1"))
	clock.Advance(31 * time.Minute)

	assert.Equal(t, 0, l.evictIdle())
	assert.False(t, l.Allow("10.0.0.1"), "still draining after eviction sweep")

	clock.Advance(90 * time.Minute)
	assert.Equal(t, 1, l.evictIdle())
	assert.Equal(t, 0, l.Size())
}
