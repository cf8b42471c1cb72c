package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	opts    SweepOptions
}

func (b *blockingSweeper) SweepStuckTransactions(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	b.calls.Add(1)
	b.opts = opts
	b.started <- struct{}{}
	<-b.release
	return &SweepReport{}, nil
}

func TestSweepScheduler_SkipsOverlappingRun(t *testing.T) {
	sweeper := &blockingSweeper{started: make(chan struct{}, 1), release: make(chan struct{})}
	scheduler := NewSweepScheduler(sweeper, time.Minute, 25, quietLogger())

	done := make(chan bool)
	go func() { done <- scheduler.RunOnce(context.Background()) }()
	<-sweeper.started

	assert.False(t, scheduler.RunOnce(context.Background()))

	close(sweeper.release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, SweepOptions{MaxRecords: 25}, sweeper.opts)

	// the flag is cleared once the first run returns
	sweeper.release = make(chan struct{})
	close(sweeper.release)
	assert.True(t, scheduler.RunOnce(context.Background()))
	<-sweeper.started
}

func TestSweepScheduler_RunStopsOnCancel(t *testing.T) {
	sweeper := &blockingSweeper{started: make(chan struct{}, 1), release: make(chan struct{})}
	scheduler := NewSweepScheduler(sweeper, time.Hour, 10, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() { errCh <- scheduler.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, sweeper.calls.Load())
}

func TestSweepScheduler_RunWaitsForInFlightSweep(t *testing.T) {
	sweeper := &blockingSweeper{started: make(chan struct{}, 1), release: make(chan struct{})}
	scheduler := NewSweepScheduler(sweeper, 10*time.Millisecond, 10, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- scheduler.Run(ctx) }()

	<-sweeper.started
	cancel()

	select {
	case <-errCh:
		t.Fatal("scheduler returned while a sweep was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(sweeper.release)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestTaskRunner_RecoversPanics(t *testing.T) {
	runner := NewTaskRunner(quietLogger())

	var ran atomic.Bool
	runner.Go("panics", func(ctx context.Context) { panic("kaboom") })
	runner.Go("fine", func(ctx context.Context) { ran.Store(true) })
	runner.Wait()

	assert.True(t, ran.Load())
}

func TestTaskRunner_ShutdownCancelsTasks(t *testing.T) {
	runner := NewTaskRunner(quietLogger())

	started := make(chan struct{})
	runner.Go("blocked", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, runner.Shutdown(ctx))
}

func TestSystemClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SystemClock().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, SystemClock().Sleep(context.Background(), time.Millisecond))
}
