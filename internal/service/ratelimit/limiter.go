package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Each key starts full with capacity tokens
// and refills at perMinute tokens per minute.
type Limiter struct {
	mu         sync.Mutex
	m          map[string]*bucket
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time
	lastPrune  time.Time
}

func New(perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Limiter{
		m:          make(map[string]*bucket),
		capacity:   float64(perMinute),
		refillRate: float64(perMinute) / 60,
		now:        time.Now,
	}
}

// PerMinute is the configured request budget per key.
func (l *Limiter) PerMinute() int { return int(l.capacity) }

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) > l.fullRefill() {
		l.pruneLocked(now)
	}
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.capacity, b.tokens+elapsed*l.refillRate)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter is how long key waits for its next token; zero when one is available.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		return 0
	}
	tokens := min(l.capacity, b.tokens+now.Sub(b.last).Seconds()*l.refillRate)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / l.refillRate * float64(time.Second))
}

// Prune forgets keys idle for longer than a full refill. Allow also prunes
// once per refill period.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now)
}

func (l *Limiter) pruneLocked(now time.Time) int {
	full := l.fullRefill()
	n := 0
	for k, b := range l.m {
		if now.Sub(b.last) > full {
			delete(l.m, k)
			n++
		}
	}
	l.lastPrune = now
	return n
}

func (l *Limiter) fullRefill() time.Duration {
	return time.Duration(l.capacity / l.refillRate * float64(time.Second))
}
