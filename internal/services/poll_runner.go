package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock time source for polling; tests substitute a fake
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock wall clock backed by timers
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollPolicy fixed-interval, bounded retry policy
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// TaskRunner runs background poll tasks as goroutines.
// Cancelling the runner only stops polling; records left pending are recovered by the sweep.
type TaskRunner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logrus.Logger
}

// NewTaskRunner creates a runner whose tasks live until Shutdown
func NewTaskRunner(logger *logrus.Logger) *TaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{ctx: ctx, cancel: cancel, logger: logger}
}

// Go starts fn in its own goroutine. Panics are logged, not propagated.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(logrus.Fields{
					"task":  name,
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
				}).Error("❌ Poll task panicked")
			}
		}()
		fn(r.ctx)
	}()
}

// Wait blocks until every started task returns
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels running tasks and waits for them, bounded by ctx
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
