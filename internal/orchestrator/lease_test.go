package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLeaseExclusionAndExpiry(t *testing.T) {
	lease := NewMemoryLease()
	ctx := context.Background()

	ok, err := lease.Acquire(ctx, "gpu-1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	// held: a second acquire fails
	ok, err = lease.Acquire(ctx, "gpu-1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different key is independent
	ok, err = lease.Acquire(ctx, "gpu-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// expiry frees the key without an explicit release
	time.Sleep(60 * time.Millisecond)
	ok, err = lease.Acquire(ctx, "gpu-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lease.Release(ctx, "gpu-1"))
	ok, err = lease.Acquire(ctx, "gpu-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
