// Package sequence hands out human-readable ticket codes backed by a
// persistent counter.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

// ErrInvalidBatch is returned when the reserved range is not usable.
var ErrInvalidBatch = errors.New("sequence: counter returned an invalid batch")

// Allocator reserves numbers from the counter in batches and formats them
// as codes. Codes from one allocator are strictly increasing; codes from
// separate allocators sharing a counter are unique but interleave.
type Allocator struct {
	counters  repository.CounterRepository
	namespace string
	prefix    string
	width     int
	batch     int64

	mu    sync.Mutex
	next  int64
	limit int64
}

// NewAllocator builds an allocator over counters.
func NewAllocator(counters repository.CounterRepository, cfg config.SequenceConfig) *Allocator {
	batch := int64(cfg.BatchSize)
	if batch <= 0 {
		batch = 1
	}
	width := cfg.Width
	if width <= 0 {
		width = 4
	}
	return &Allocator{
		counters:  counters,
		namespace: cfg.Namespace,
		prefix:    cfg.Prefix,
		width:     width,
		batch:     batch,
	}
}

// Allocate returns the next code. A storage failure is returned as is and
// leaves the batch cursor untouched, so the next call retries the reservation.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	n, err := a.nextNumber(ctx)
	if err != nil {
		return "", err
	}
	return a.Format(n), nil
}

// Format renders n with the allocator's prefix and zero padding. Numbers
// wider than the padding are printed in full.
func (a *Allocator) Format(n int64) string {
	return fmt.Sprintf("%s-%0*d", a.prefix, a.width, n)
}

func (a *Allocator) nextNumber(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == 0 || a.next > a.limit {
		value, err := a.counters.Increment(ctx, a.namespace, a.batch)
		if err != nil {
			return 0, fmt.Errorf("reserve %s sequence: %w", a.namespace, err)
		}
		if value < a.batch {
			return 0, ErrInvalidBatch
		}
		a.next = value - a.batch + 1
		a.limit = value
	}
	n := a.next
	a.next++
	return n, nil
}
