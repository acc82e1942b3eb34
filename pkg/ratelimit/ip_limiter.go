package ratelimit

import (
	"sync"
	"time"
)

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than idleTTL are evicted by a background sweep once they have refilled, so
// eviction never hands a client more tokens than waiting would.
type IPRateLimiter struct {
	limiters   map[string]*ipEntry
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	now        func() time.Time
	stopOnce   sync.Once
	stopChan   chan struct{}
}

type ipEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IPRateLimiter and starts its sweeper
func NewIPRateLimiter(maxTokens, refillRate float64) *IPRateLimiter {
	limiter := newIPRateLimiter(maxTokens, refillRate, time.Now)
	go limiter.cleanupLoop(time.NewTicker(10 * time.Minute))
	return limiter
}

func newIPRateLimiter(maxTokens, refillRate float64, now func() time.Time) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:   make(map[string]*ipEntry),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    30 * time.Minute,
		now:        now,
		stopChan:   make(chan struct{}),
	}
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	entry, exists := ipl.limiters[ip]

	if !exists {
		entry = &ipEntry{bucket: newTokenBucket(ipl.maxTokens, ipl.refillRate, ipl.now)}
		ipl.limiters[ip] = entry
	}

	entry.lastSeen = ipl.now()
	return entry.bucket
}

// evictIdle drops full buckets not seen within idleTTL and returns how many were removed
func (ipl *IPRateLimiter) evictIdle() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	cutoff := ipl.now().Add(-ipl.idleTTL)
	removed := 0

	for ip, entry := range ipl.limiters {
		if entry.lastSeen.Before(cutoff) && entry.bucket.Full() {
			delete(ipl.limiters, ip)
			removed++
		}
	}

	return removed
}

// Size returns the number of tracked IPs
func (ipl *IPRateLimiter) Size() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	return len(ipl.limiters)
}

func (ipl *IPRateLimiter) cleanupLoop(ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ipl.evictIdle()
		case <-ipl.stopChan:
			return
		}
	}
}

// Stop stops the sweeper. Safe to call more than once.
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() { close(ipl.stopChan) })
}
