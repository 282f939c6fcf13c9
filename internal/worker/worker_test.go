package worker

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/service"
)

func TestPollerRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	poll := func(ctx context.Context, limit int) (service.BatchResult, error) {
		assert.Equal(t, 5, limit)
		calls.Add(1)
		return service.BatchResult{}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPoller(poll, 10*time.Millisecond, 5, nil).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerToleratesBusyPolls(t *testing.T) {
	var calls atomic.Int32
	poll := func(context.Context, int) (service.BatchResult, error) {
		calls.Add(1)
		return service.BatchResult{}, service.ErrPollInProgress
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	NewPoller(poll, 10*time.Millisecond, 1, nil).Run(ctx)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestDisabledPollerReturns(t *testing.T) {
	NewPoller(nil, 0, 1, nil).Run(context.Background())
}

func TestRedisLockIsExclusive(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	key := "test:poll-lock:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())

	a := NewRedisLock(client, key, time.Minute, nil)
	b := NewRedisLock(client, key, time.Minute, nil)

	release, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	releaseB, ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}
