// Scheduler Service
// Runs the stuck-transaction sweep periodically
package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper runs one sweep
type Sweeper interface {
	SweepStuckTransactions(ctx context.Context, opts SweepOptions) (*SweepReport, error)
}

// SweepScheduler ticks the sweep; a run requested while another is in progress is dropped
type SweepScheduler struct {
	sweeper    Sweeper
	interval   time.Duration
	maxRecords int
	runTimeout time.Duration
	running    atomic.Bool
	logger     *logrus.Logger
}

// NewSweepScheduler creates a new SweepScheduler instance
func NewSweepScheduler(sweeper Sweeper, interval time.Duration, maxRecords int, logger *logrus.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweeper:    sweeper,
		interval:   interval,
		maxRecords: maxRecords,
		runTimeout: 5 * time.Minute,
		logger:     logger,
	}
}

// Run blocks until ctx is done. Sweeps run inline, so Run returns only after
// the in-flight sweep has finished; ticks missed meanwhile are dropped by the ticker.
func (s *SweepScheduler) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"interval":    s.interval,
		"max_records": s.maxRecords,
	}).Info("🚀 Sweep scheduler starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() == nil {
				s.RunOnce(ctx)
			}
		case <-ctx.Done():
			s.logger.Info("🛑 Sweep scheduler stopped")
			return nil
		}
	}
}

// RunOnce performs one sweep unless another is already running. Reports whether it ran.
func (s *SweepScheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("⏭️ Previous sweep still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	s.logger.Info("⏰ Sweep scheduled task triggered")
	if _, err := s.sweeper.SweepStuckTransactions(runCtx, SweepOptions{MaxRecords: s.maxRecords}); err != nil {
		s.logger.WithError(err).Error("❌ Scheduled sweep failed")
	}
	return true
}
