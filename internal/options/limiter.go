package options

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// limiterRegistry holds the per-module-name concurrency semaphores and
// throttle buckets, shared across every run sharing a runtime instance
// (section 5: "The limiter registry (per-module-name semaphores and
// token buckets); shared across runs sharing the same runtime
// instance.").
type limiterRegistry struct {
	mu          sync.Mutex
	concurrency map[string]*semaphore.Weighted
	throttles   map[string]*tokenBucket
}

func newLimiterRegistry() *limiterRegistry {
	return &limiterRegistry{
		concurrency: make(map[string]*semaphore.Weighted),
		throttles:   make(map[string]*tokenBucket),
	}
}

func (r *limiterRegistry) concurrencyFor(moduleName string, n int) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.concurrency[moduleName]
	if !ok {
		s = semaphore.NewWeighted(int64(n))
		r.concurrency[moduleName] = s
	}
	return s
}

func (r *limiterRegistry) throttleFor(moduleName string, count int, window time.Duration) *tokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.throttles[moduleName]
	if !ok {
		b = newTokenBucket(count, window)
		r.throttles[moduleName] = b
	}
	return b
}

// tokenBucket is a fixed-window rate limiter: count permits refilled
// every window, shared across every caller of a given module name
// (section 4.7 item 4: "token-bucket limiter per module name (count
// per window)").
type tokenBucket struct {
	mu          sync.Mutex
	count       int
	window      time.Duration
	tokens      int
	windowStart time.Time
}

func newTokenBucket(count int, window time.Duration) *tokenBucket {
	return &tokenBucket{count: count, window: window, tokens: count, windowStart: time.Now()}
}

// Acquire blocks until a token is available or ctx is cancelled.
func (b *tokenBucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		if now.Sub(b.windowStart) >= b.window {
			b.windowStart = now
			b.tokens = b.count
		}
		if b.tokens > 0 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := b.window - now.Sub(b.windowStart)
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
