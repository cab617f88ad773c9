package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultScheduleInterval = time.Hour

type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) Response
}

// Scheduler issues a scheduled invocation on start and then every interval.
type Scheduler struct {
	invoker  Invoker
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(invoker Invoker, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultScheduleInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{invoker: invoker, interval: interval, logger: logger}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("starting snapshot scheduler", zap.Duration("interval", s.interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context done, stopping snapshot scheduler")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	resp := s.invoker.Invoke(ctx, Invocation{Source: SourceScheduler})
	s.logger.Info("scheduled aggregation finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)))
}
