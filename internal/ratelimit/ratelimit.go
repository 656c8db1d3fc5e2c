// Package ratelimit provides a sliding-window call-frequency guard keyed by
// caller+action.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxKeys is the bucket-count high-water mark that triggers a sweep.
// Connections churn constantly, so stale keys accumulate without one.
const DefaultMaxKeys = 10000

// Limiter tracks recent call timestamps per key inside a sliding window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	maxKeys int
	clock   func() time.Time
}

// New creates a limiter that sweeps idle buckets once the number of
// distinct keys exceeds maxKeys. A non-positive maxKeys uses DefaultMaxKeys.
func New(maxKeys int) *Limiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Limiter{
		buckets: make(map[string][]time.Time),
		maxKeys: maxKeys,
		clock:   time.Now,
	}
}

// Key builds the caller+action composite bucket key.
func Key(connectionID, action string) string {
	return connectionID + ":" + action
}

// Allow reports whether a call under key may proceed given at most limit
// calls per window. Only allowed calls are recorded: a denied call does not
// extend the window, so a caller sitting at the limit recovers as soon as
// the oldest allowed call ages out.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	cutoff := now.Add(-window)

	recent := prune(l.buckets[key], cutoff)
	if len(recent) >= limit {
		l.buckets[key] = recent
		return false
	}

	l.buckets[key] = append(recent, now)

	if len(l.buckets) > l.maxKeys {
		l.sweep(cutoff)
	}
	return true
}

// prune drops timestamps at or before cutoff, keeping order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// sweep removes buckets with no activity after cutoff. Point-in-time pass,
// no background timer.
func (l *Limiter) sweep(cutoff time.Time) {
	for key, stamps := range l.buckets {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Keys returns the number of distinct buckets currently tracked.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
