// Package ratelimit holds the request limiters used in front of the API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const idleTTL = 30 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Memory is an in-process token bucket per key. It allows max requests per
// window and refills evenly across the window.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	every   rate.Limit
	now     func() time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	if max <= 0 {
		max = 1
	}
	return &Memory{
		buckets: make(map[string]*bucket),
		max:     max,
		every:   rate.Every(window / time.Duration(max)),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.every, m.max)}
		m.buckets[key] = b
	}
	b.seen = now

	d := Decision{Limit: m.max}
	if b.lim.AllowN(now, 1) {
		d.Allowed = true
	} else {
		r := b.lim.ReserveN(now, 1)
		d.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}
	if tokens := int(b.lim.TokensAt(now)); tokens > 0 {
		d.Remaining = tokens
	}
	return d, nil
}

// Sweep drops buckets idle for longer than idleTTL and returns how many went.
func (m *Memory) Sweep() int {
	cutoff := m.now().Add(-idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, b := range m.buckets {
		if b.seen.Before(cutoff) {
			delete(m.buckets, k)
			n++
		}
	}
	return n
}

// Start sweeps idle buckets every minute until ctx is done.
func (m *Memory) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
