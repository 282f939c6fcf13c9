package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/repository/memory"
)

type counterMock struct {
	mock.Mock
}

func (m *counterMock) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	args := m.Called(ctx, name, delta)
	return args.Get(0).(int64), args.Error(1)
}

func testConfig(batch int) config.SequenceConfig {
	return config.SequenceConfig{Namespace: "tickets", Prefix: "TCK", Width: 4, BatchSize: batch}
}

func TestAllocateFormatsCodes(t *testing.T) {
	a := NewAllocator(memory.NewStore().Set().Counters, testConfig(10))

	first, err := a.Allocate(context.Background())
	require.NoError(t, err)
	second, err := a.Allocate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "TCK-0001", first)
	assert.Equal(t, "TCK-0002", second)
	assert.Equal(t, "TCK-12345", a.Format(12345))
}

func TestAllocateReservesOncePerBatch(t *testing.T) {
	counters := &counterMock{}
	counters.On("Increment", mock.Anything, "tickets", int64(3)).Return(int64(3), nil).Once()
	counters.On("Increment", mock.Anything, "tickets", int64(3)).Return(int64(6), nil).Once()

	a := NewAllocator(counters, testConfig(3))
	var codes []string
	for i := 0; i < 4; i++ {
		code, err := a.Allocate(context.Background())
		require.NoError(t, err)
		codes = append(codes, code)
	}

	assert.Equal(t, []string{"TCK-0001", "TCK-0002", "TCK-0003", "TCK-0004"}, codes)
	counters.AssertExpectations(t)
}

func TestAllocateFailureKeepsCursor(t *testing.T) {
	counters := &counterMock{}
	counters.On("Increment", mock.Anything, "tickets", int64(2)).Return(int64(0), errors.New("db down")).Once()
	counters.On("Increment", mock.Anything, "tickets", int64(2)).Return(int64(2), nil).Once()

	a := NewAllocator(counters, testConfig(2))
	_, err := a.Allocate(context.Background())
	require.Error(t, err)

	code, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TCK-0001", code)
}

func TestConcurrentAllocatorsNeverCollide(t *testing.T) {
	counters := memory.NewStore().Set().Counters
	allocators := []*Allocator{
		NewAllocator(counters, testConfig(7)),
		NewAllocator(counters, testConfig(7)),
		NewAllocator(counters, testConfig(7)),
	}

	var (
		mu    sync.Mutex
		seen  = map[string]bool{}
		wg    sync.WaitGroup
		total = 300
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(a *Allocator) {
			defer wg.Done()
			code, err := a.Allocate(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[code] = true
			mu.Unlock()
		}(allocators[i%len(allocators)])
	}
	wg.Wait()

	assert.Len(t, seen, total)
}
