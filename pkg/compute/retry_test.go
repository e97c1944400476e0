package compute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryOnlyOnProviderUnavailable(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ErrProviderUnavailable
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	// capacity errors surface immediately, a retry cannot help
	calls = 0
	err = policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrNoCapacity
	})
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.Equal(t, 1, calls)

	calls = 0
	err = policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrInstanceNotFound
	})
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrProviderUnavailable
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 4, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return ErrProviderUnavailable
		})
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrProviderUnavailable))
	case <-time.After(time.Second):
		t.Fatal("retry loop did not stop after cancellation")
	}
	assert.LessOrEqual(t, calls, 2)
}
