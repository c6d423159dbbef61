package middleware

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestChain_Order(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next Step) Step {
			return func(ctx context.Context, input []byte) ([]byte, error) {
				trace = append(trace, name)
				return next(ctx, input)
			}
		}
	}
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		trace = append(trace, "step")
		return input, nil
	}

	out, err := Chain(step, mark("outer"), mark("inner"))(context.Background(), []byte("x"))

	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)
	assert.Equal(t, []string{"outer", "inner", "step"}, trace)
}

func TestWithRetry_RetriesTransientUntilSuccess(t *testing.T) {
	var calls int32
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.Storage("write", stderrors.New("disk busy"))
		}
		return []byte("ok"), nil
	}

	out, err := WithRetry(observability.NewNopLogger(), fastPolicy(5))(step)(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	assert.Equal(t, int32(3), calls)
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	var calls int32
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.Wrap(errors.ErrNotFound, "reservation r1", nil)
	}

	_, err := WithRetry(observability.NewNopLogger(), fastPolicy(5))(step)(context.Background(), nil)

	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, int32(1), calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	var calls int32
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.NewTimeoutError(errors.CodeStepTimeout, "slow")
	}

	_, err := WithRetry(observability.NewNopLogger(), fastPolicy(3))(step)(context.Background(), nil)

	assert.Equal(t, errors.CodeStepTimeout, errors.CodeOf(err))
	assert.Equal(t, int32(3), calls)
}

func TestWithRetry_GRPCClassifiedInside(t *testing.T) {
	var calls int32
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, status.Error(codes.Unavailable, "broker restarting")
		}
		return []byte("sent"), nil
	}

	wrapped := Chain(step, WithRetry(observability.NewNopLogger(), fastPolicy(3)), WithGRPCErrorHandling())
	out, err := wrapped(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, []byte("sent"), out)
	assert.Equal(t, int32(2), calls)
}

func TestWithTimeout(t *testing.T) {
	var exited atomic.Bool
	slow := func(ctx context.Context, input []byte) ([]byte, error) {
		defer exited.Store(true)
		select {
		case <-time.After(time.Second):
			return []byte("late"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	start := time.Now()
	_, err := WithTimeout(10 * time.Millisecond)(slow)(context.Background(), nil)

	var customErr *errors.CustomError
	require.True(t, stderrors.As(err, &customErr))
	assert.True(t, customErr.IsTimeout())
	assert.Equal(t, errors.CodeStepTimeout, customErr.Code)
	assert.True(t, exited.Load(), "the step has returned by the time the timeout is reported")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWithTimeout_StepSeesDeadline(t *testing.T) {
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return []byte("done"), nil
	}

	out, err := WithTimeout(time.Second)(step)(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, []byte("done"), out)
}

func TestWithTimeout_CallerCancellationIsNotAStepTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := WithTimeout(time.Second)(step)(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, errors.CodeStepTimeout, errors.CodeOf(err))
}

func TestWithCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var calls int32
	failing := func(ctx context.Context, input []byte) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, stderrors.New("broker unreachable")
	}

	wrapped := WithCircuitBreaker(observability.NewNopLogger(), "publish", 0.5, time.Minute)(failing)

	for i := 0; i < 3; i++ {
		_, err := wrapped(context.Background(), nil)
		require.Error(t, err)
	}

	_, err := wrapped(context.Background(), nil)

	assert.Equal(t, errors.CodeCircuitBreakerOpen, errors.CodeOf(err))
	assert.Equal(t, errors.ErrorTypeTransient, errors.ClassifyError(err))
	assert.Equal(t, int32(3), calls, "open breaker short-circuits the step")
}

func TestWithMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	ok := func(ctx context.Context, input []byte) ([]byte, error) { return nil, nil }
	bad := func(ctx context.Context, input []byte) ([]byte, error) { return nil, stderrors.New("x") }

	_, _ = WithMetrics(metrics, "deliver")(ok)(context.Background(), nil)
	_, _ = WithMetrics(metrics, "deliver")(bad)(context.Background(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StepExecutions.WithLabelValues("deliver", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StepExecutions.WithLabelValues("deliver", "error")))
}

func TestWithLogging_PassesThrough(t *testing.T) {
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, errors.ErrSlotUnavailable
	}

	_, err := WithLogging(observability.NewNopLogger(), "submit")(step)(context.Background(), nil)

	assert.ErrorIs(t, err, errors.ErrSlotUnavailable)
}
