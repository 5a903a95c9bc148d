package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper clears expired coupon verification state.
type Sweeper interface {
	Sweep(ctx context.Context) (clearedOTPs, expiredPending int64, err error)
}

// Scheduler runs the coupon sweep on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler registers the sweep under spec (standard five-field cron).
func NewScheduler(spec string, sweeper Sweeper, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		timeout: time.Minute,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce performs one sweep and logs the outcome.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	otps, pending, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("coupon cleanup failed", zap.Error(err))
		return
	}
	s.logger.Info("coupon cleanup", zap.Int64("cleared_otps", otps), zap.Int64("expired_pending", pending))
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
