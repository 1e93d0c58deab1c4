package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	l := NewMemoryLimiter(&Config{RPS: 1, Burst: 3})
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "route")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst should pass", i)
	}

	ok, err := l.Allow(ctx, "route")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l := NewMemoryLimiter(&Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	ok, err := l.Allow(ctx, "route")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = l.Allow(ctx, "route")
	require.False(t, ok)

	// 100ms at 10 rps refills exactly one token.
	now = now.Add(100 * time.Millisecond)
	ok, err = l.Allow(ctx, "route")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	l := NewMemoryLimiter(&Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	ok, _ := l.Allow(ctx, "a")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "a")
	require.False(t, ok)

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "key b has its own bucket")
}

func TestMemoryLimiter_Closed(t *testing.T) {
	l := NewMemoryLimiter(nil)
	require.NoError(t, l.Close())

	_, err := l.Allow(context.Background(), "route")
	assert.ErrorIs(t, err, ErrLimiterClosed)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(&Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(2)

	require.True(t, s.TryAcquire())
	require.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire(), "ceiling reached")

	s.Release()
	assert.True(t, s.TryAcquire())
}

func TestSemaphore_Unbounded(t *testing.T) {
	s := NewSemaphore(0)
	for i := 0; i < 100; i++ {
		require.True(t, s.TryAcquire())
	}
}
