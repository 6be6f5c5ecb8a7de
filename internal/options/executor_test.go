package options

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"constellation/internal/ctype"
	"constellation/internal/ir"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func TestInvokePlainCallSucceeds(t *testing.T) {
	rt := NewRuntime(nil, 2)
	v, err := rt.Invoke(context.Background(), "m", ir.IRModuleCallOptions{}, "k", nil, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		return ctype.NewString("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v.Str())
}

func TestInvokeRetrySucceedsOnThirdAttempt(t *testing.T) {
	rt := NewRuntime(nil, 2)
	attempt := 0
	opts := ir.IRModuleCallOptions{
		HasRetry: true, Retry: 2,
		HasDelay: true, DelayMs: 1, Backoff: "exponential",
	}
	v, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		attempt++
		if attempt < 3 {
			return nil, errors.New("transient")
		}
		return ctype.NewString("done"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v.Str())
	assert.Equal(t, 3, attempt)
}

func TestInvokeFallbackUsedAfterRetriesExhausted(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{HasRetry: true, Retry: 1, HasFallback: true}
	fallback := ctype.NewString("dflt")
	v, err := rt.Invoke(context.Background(), "m", opts, "k", fallback, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		return nil, errors.New("always fails")
	})
	require.NoError(t, err)
	assert.Equal(t, "dflt", v.Str())
}

func TestInvokeFallbackNotUsedWhenRetrySucceeds(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{HasRetry: true, Retry: 1, HasFallback: true}
	fallback := ctype.NewString("dflt")
	attempt := 0
	v, err := rt.Invoke(context.Background(), "m", opts, "k", fallback, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		attempt++
		if attempt == 1 {
			return nil, errors.New("transient")
		}
		return ctype.NewString("real"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "real", v.Str())
	assert.Equal(t, 2, attempt)
}

func TestInvokeOnErrorSkipReturnsZeroValue(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{OnError: "skip"}
	v, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, func(ctx context.Context) (*ctype.Value, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int())
}

func TestInvokeOnErrorFailPropagatesError(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{OnError: "fail"}
	_, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, func(ctx context.Context) (*ctype.Value, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
}

func TestInvokeOnErrorWrapEncodesErrorVariant(t *testing.T) {
	rt := NewRuntime(nil, 2)
	outputType := ctype.Union(map[string]*ctype.Type{
		"ok":    ctype.String,
		"error": ctype.String,
	})
	opts := ir.IRModuleCallOptions{OnError: "wrap"}
	v, err := rt.Invoke(context.Background(), "m", opts, "k", nil, outputType, func(ctx context.Context) (*ctype.Value, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, "error", v.Tag())
	assert.Equal(t, "boom", v.Payload().Str())
}

func TestInvokeCacheHitSkipsSecondCall(t *testing.T) {
	rt := NewRuntime(NewMemoryCache(), 2)
	calls := 0
	opts := ir.IRModuleCallOptions{HasCache: true, CacheTTLMs: 0}
	call := func(ctx context.Context) (*ctype.Value, error) {
		calls++
		return ctype.NewInt(int64(calls)), nil
	}
	v1, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, call)
	require.NoError(t, err)
	v2, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, call)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, v1.Int(), v2.Int())
}

func TestInvokeCacheExpiresAfterTTL(t *testing.T) {
	rt := NewRuntime(NewMemoryCache(), 2)
	calls := 0
	opts := ir.IRModuleCallOptions{HasCache: true, CacheTTLMs: 1}
	call := func(ctx context.Context) (*ctype.Value, error) {
		calls++
		return ctype.NewInt(int64(calls)), nil
	}
	_, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, call)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.Int, call)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestInvokeTimeoutCancelsSlowCall(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{HasTimeout: true, TimeoutMs: 5}
	_, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return ctype.NewString("too slow"), nil
		}
	})
	assert.Error(t, err)
}

func TestInvokeConcurrencyLimitsSimultaneousCalls(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{HasConcurrency: true, Concurrency: 1}

	inFlight := make(chan struct{}, 10)
	maxSeen := 0
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}

	run := func() {
		rt.Invoke(context.Background(), "limited", opts, "k", nil, ctype.Boolean, func(ctx context.Context) (*ctype.Value, error) {
			inFlight <- struct{}{}
			<-mu
			if len(inFlight) > maxSeen {
				maxSeen = len(inFlight)
			}
			mu <- struct{}{}
			time.Sleep(5 * time.Millisecond)
			<-inFlight
			return ctype.NewBoolean(true), nil
		})
	}

	done := make(chan struct{})
	go func() { run(); done <- struct{}{} }()
	go func() { run(); done <- struct{}{} }()
	<-done
	<-done

	assert.LessOrEqual(t, maxSeen, 1)
}

func TestInvokeThrottleSerializesBurstsAcrossWindow(t *testing.T) {
	rt := NewRuntime(nil, 2)
	opts := ir.IRModuleCallOptions{HasThrottle: true, ThrottleCount: 1, ThrottleWindowMs: 10}

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := rt.Invoke(context.Background(), "throttled", opts, "k", nil, ctype.Boolean, func(ctx context.Context) (*ctype.Value, error) {
			return ctype.NewBoolean(true), nil
		})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)
}

func TestInvokePriorityRunsTaskThroughScheduler(t *testing.T) {
	rt := NewRuntime(nil, 1)
	opts := ir.IRModuleCallOptions{HasPriority: true, Priority: 10}
	v, err := rt.Invoke(context.Background(), "m", opts, "k", nil, ctype.String, func(ctx context.Context) (*ctype.Value, error) {
		return ctype.NewString("scheduled"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", v.Str())
}
