// Package ratelimit keeps one token bucket per client key. Each bucket allows
// Requests calls per Window with a burst of Requests; idle buckets are evicted.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter struct {
	requests int
	window   time.Duration
	idleTTL  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		requests: requests,
		window:   window,
		idleTTL:  2 * window,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

func (l *Limiter) Limit() int { return l.requests }

func (l *Limiter) Window() time.Duration { return l.window }

// Allow reports whether key may perform one more request now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		every := l.window / time.Duration(l.requests)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), l.requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Evict drops buckets unused for longer than twice the window.
func (l *Limiter) Evict() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Janitor calls Evict every window until ctx is done.
func (l *Limiter) Janitor(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}
