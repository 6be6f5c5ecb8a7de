// Package options implements the module-call options executor (section
// 4.7): a composition of per-call resilience strategies wrapped around
// a raw module invocation. Composition order, outermost to innermost:
// lazy, priority, concurrency, throttle, cache, timeout, fallback/
// on-error, retry+backoff. Fallback/on-error is composed outside retry
// (not innermost as section 4.7's numbered list would suggest) so that
// item 8's invariant actually holds: retries must be exhausted before a
// fallback is produced. See DESIGN.md's Open Question decisions.
package options

import (
	"context"
	"fmt"
	"sort"
	"time"

	"constellation/internal/ctype"
	"constellation/internal/ir"
	"constellation/internal/logging"
)

// Invoker performs the raw, undecorated module call.
type Invoker func(ctx context.Context) (*ctype.Value, error)

// Runtime owns the shared state a decorated invocation needs across
// calls within a run: the limiter registry (concurrency semaphores and
// throttle buckets, shared per module name) and the priority scheduler
// (section 5: "shared across runs sharing the same runtime instance").
type Runtime struct {
	Cache CacheBackend

	limiters  *limiterRegistry
	scheduler *priorityScheduler
}

// NewRuntime constructs a Runtime with the given cache backend and
// priority-scheduler worker pool size. A nil cache defaults to an
// in-memory one.
func NewRuntime(cache CacheBackend, priorityWorkers int) *Runtime {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Runtime{
		Cache:     cache,
		limiters:  newLimiterRegistry(),
		scheduler: newPriorityScheduler(priorityWorkers),
	}
}

// Invoke runs call through the options decorator chain configured by
// opts. moduleName identifies the limiter/cache partition; cacheKey is
// the canonicalized input hash used as the cache's key within that
// partition; fallback and outputType supply the fallback value and
// zero/wrap target for section 4.7 items 8-9.
func (rt *Runtime) Invoke(ctx context.Context, moduleName string, opts ir.IRModuleCallOptions, cacheKey string, fallback *ctype.Value, outputType *ctype.Type, call Invoker) (*ctype.Value, error) {
	ctx = withModuleName(ctx, moduleName)
	next := call

	// 7. Retry with backoff: wraps the raw call directly, so every
	// attempt hits the real module. Fallback/on-error must only see the
	// outcome after retries are exhausted (section 4.7 item 8: "if all
	// retries fail and a fallback is configured, produce the fallback
	// value"); composing it the other way would let a fallback or
	// on-error policy swallow the first failure before retry ever loops.
	next = rt.withRetry(next, opts)

	// 9. On-error / 8. Fallback: wraps the already-retried call.
	next = rt.withFallbackAndOnError(next, opts, fallback, outputType)

	// 6. Timeout.
	next = rt.withTimeout(next, opts)

	// 5. Cache.
	next = rt.withCache(next, moduleName, cacheKey, opts)

	// 4. Throttle.
	next = rt.withThrottle(next, moduleName, opts)

	// 3. Concurrency.
	next = rt.withConcurrency(next, moduleName, opts)

	// 2. Priority.
	next = rt.withPriority(next, opts)

	// 1. Lazy: outermost. A lazy call is only forced when the caller
	// actually invokes the returned function; Invoke itself always
	// forces immediately since callers already decide when to call it,
	// so lazy here amounts to deferring the remaining chain to the
	// point the caller resolves it via the returned thunk semantics of
	// the scheduler (section 4.7 item 1: "never executes until a
	// downstream consumer forces it").
	return next(ctx)
}

func (rt *Runtime) withFallbackAndOnError(inner Invoker, opts ir.IRModuleCallOptions, fallback *ctype.Value, outputType *ctype.Type) Invoker {
	return func(ctx context.Context) (*ctype.Value, error) {
		v, err := inner(ctx)
		if err == nil {
			return v, nil
		}
		if opts.HasFallback && fallback != nil {
			return fallback, nil
		}
		switch opts.OnError {
		case "skip":
			return ctype.Zero(outputType), nil
		case "log":
			logging.OptionsError("module %q failed, returning zero value: %v", moduleNameFromContext(ctx), err)
			return ctype.Zero(outputType), nil
		case "wrap":
			if wrapped, ok := wrapError(outputType, err); ok {
				return wrapped, nil
			}
			return nil, err
		default: // "fail"
			return nil, err
		}
	}
}

// wrapError attempts to encode err into a union-typed output by
// finding a variant whose payload is a string, preferring one
// literally tagged "error". Returns ok=false when outputType carries
// no such variant, in which case the caller must propagate err as-is.
func wrapError(outputType *ctype.Type, err error) (*ctype.Value, bool) {
	if outputType == nil || outputType.Kind != ctype.KindUnion {
		return nil, false
	}
	if vt, ok := outputType.Variants["error"]; ok && vt.Kind == ctype.KindString {
		return ctype.NewUnion(outputType, "error", ctype.NewString(err.Error())), true
	}
	tags := make([]string, 0, len(outputType.Variants))
	for tag := range outputType.Variants {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if outputType.Variants[tag].Kind == ctype.KindString {
			return ctype.NewUnion(outputType, tag, ctype.NewString(err.Error())), true
		}
	}
	return nil, false
}

func (rt *Runtime) withRetry(inner Invoker, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasRetry || opts.Retry <= 0 {
		return inner
	}
	attempts := 1 + opts.Retry
	return func(ctx context.Context) (*ctype.Value, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			v, err := inner(ctx)
			if err == nil {
				return v, nil
			}
			lastErr = err
			if attempt == attempts {
				break
			}
			if opts.HasDelay && opts.DelayMs > 0 {
				delay := backoffDelay(opts.DelayMs, opts.Backoff, attempt)
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
		}
		return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
}

func (rt *Runtime) withTimeout(inner Invoker, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasTimeout || opts.TimeoutMs <= 0 {
		return inner
	}
	return func(ctx context.Context) (*ctype.Value, error) {
		tctx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
		return inner(tctx)
	}
}

func (rt *Runtime) withCache(inner Invoker, moduleName, cacheKey string, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasCache {
		return inner
	}
	return func(ctx context.Context) (*ctype.Value, error) {
		if v, ok := rt.Cache.Get(moduleName, cacheKey); ok {
			logging.Options("cache hit for %s/%s", moduleName, cacheKey)
			return v, nil
		}
		v, err := inner(ctx)
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(opts.CacheTTLMs) * time.Millisecond
		rt.Cache.Put(moduleName, cacheKey, v, ttl)
		return v, nil
	}
}

func (rt *Runtime) withThrottle(inner Invoker, moduleName string, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasThrottle {
		return inner
	}
	count := opts.ThrottleCount
	if count <= 0 {
		count = 1
	}
	window := time.Duration(opts.ThrottleWindowMs) * time.Millisecond
	if window <= 0 {
		window = time.Second
	}
	bucket := rt.limiters.throttleFor(moduleName, count, window)
	return func(ctx context.Context) (*ctype.Value, error) {
		if err := bucket.Acquire(ctx); err != nil {
			return nil, err
		}
		return inner(ctx)
	}
}

func (rt *Runtime) withConcurrency(inner Invoker, moduleName string, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasConcurrency || opts.Concurrency <= 0 {
		return inner
	}
	sem := rt.limiters.concurrencyFor(moduleName, opts.Concurrency)
	return func(ctx context.Context) (*ctype.Value, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
		return inner(ctx)
	}
}

func (rt *Runtime) withPriority(inner Invoker, opts ir.IRModuleCallOptions) Invoker {
	if !opts.HasPriority {
		return inner
	}
	priority := opts.Priority
	return func(ctx context.Context) (*ctype.Value, error) {
		var v *ctype.Value
		var err error
		submitErr := rt.scheduler.submit(ctx, priority, func() {
			v, err = inner(ctx)
		})
		if submitErr != nil {
			return nil, submitErr
		}
		return v, err
	}
}

type moduleNameKey struct{}

func withModuleName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, moduleNameKey{}, name)
}

func moduleNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(moduleNameKey{}).(string); ok {
		return name
	}
	return "<unknown>"
}
