package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultCleanup = time.Minute
)

type memEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
// Buckets idle for longer than ttl are dropped by a background sweep.
type MemoryLimiter struct {
	mu      sync.Mutex
	m       map[string]*memEntry
	ttl     time.Duration
	cleanup time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

func NewMemoryLimiter(ttl time.Duration, cleanupEvery time.Duration) *MemoryLimiter {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = defaultCleanup
	}
	ml := &MemoryLimiter{
		m:       make(map[string]*memEntry),
		ttl:     ttl,
		cleanup: cleanupEvery,
		stopCh:  make(chan struct{}),
	}
	go ml.gcLoop()
	return ml
}

func (m *MemoryLimiter) gcLoop() {
	t := time.NewTicker(m.cleanup)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.mu.Lock()
			now := time.Now()
			for k, e := range m.m {
				if now.Sub(e.lastSeen) > m.ttl {
					delete(m.m, k)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, rps float64, burst int) (Decision, error) {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}

	m.mu.Lock()
	e := m.m[key]
	if e == nil {
		e = &memEntry{lim: rate.NewLimiter(rate.Limit(rps), burst)}
		m.m[key] = e
	}
	now := time.Now()
	e.lastSeen = now
	lim := e.lim
	m.mu.Unlock()

	dec := Decision{LimitRPS: rps, Burst: burst}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		dec.RetryAfterSeconds = 1
		return dec, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		dec.RetryAfterSeconds = int(math.Ceil(delay.Seconds()))
		return dec, nil
	}
	dec.Allowed = true
	dec.Remaining = int(lim.TokensAt(now))
	return dec, nil
}

// Len reports how many buckets are currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}
