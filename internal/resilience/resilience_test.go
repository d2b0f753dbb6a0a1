package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return cfg
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	}, fastRetry())

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetry_Exhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	}, fastRetry())

	require.ErrorIs(t, err, ErrExhaustedRetries)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 3, calls)
}

func TestWithRetry_ShouldRetryStopsEarly(t *testing.T) {
	t.Parallel()

	cfg := fastRetry()
	cfg.ShouldRetry = func(error) bool { return false }

	calls := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	}, cfg)

	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, ErrExhaustedRetries)
	require.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := WithRetry(ctx, func(context.Context) error {
		cancel()
		return errBoom
	}, fastRetry())

	require.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, ResetInterval: time.Minute})
	fail := func(context.Context) error { return errBoom }

	require.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	require.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	require.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(context.Background(), fail), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errBoom) },
	})

	require.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errBoom }), errBoom)
	require.Equal(t, StateClosed, cb.State())
}
