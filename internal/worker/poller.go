// Package worker runs the background ingestion loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/service"
)

// PollFunc runs one poll of at most limit messages.
type PollFunc func(ctx context.Context, limit int) (service.BatchResult, error)

// Poller calls a PollFunc on a fixed interval until its context ends.
type Poller struct {
	poll     PollFunc
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

// NewPoller builds a poller. A non-positive interval disables it.
func NewPoller(poll PollFunc, interval time.Duration, limit int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{poll: poll, interval: interval, limit: limit, logger: logger}
}

// Run polls once immediately and then on every tick. It returns when ctx
// is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("ingestion poller disabled")
		return
	}
	p.logger.Info("ingestion poller started", zap.Duration("interval", p.interval))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("ingestion poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	_, err := p.poll(ctx, p.limit)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrPollInProgress):
		p.logger.Debug("poll skipped, another one is running")
	case ctx.Err() != nil:
	default:
		p.logger.Error("scheduled poll failed", zap.Error(err))
	}
}
