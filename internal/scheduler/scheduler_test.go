package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyThenTicks(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := New(func(context.Context) error {
		if runs.Add(1) >= 3 {
			cancel()
		}
		return nil
	}, 10*time.Millisecond, time.Second)

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler.Start did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestScheduler_FailuresDoNotStopLoop(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := New(func(context.Context) error {
		if runs.Add(1) >= 2 {
			cancel()
		}
		return errors.New("boom")
	}, 10*time.Millisecond, time.Second)

	s.Start(ctx)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestScheduler_RunBoundedByTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var gotErr error

	s := New(func(runCtx context.Context) error {
		<-runCtx.Done()
		gotErr = runCtx.Err()
		cancel()
		return gotErr
	}, time.Hour, 20*time.Millisecond)

	s.Start(ctx)
	require.Error(t, gotErr)
	assert.True(t, errors.Is(gotErr, context.DeadlineExceeded))
}

func TestScheduler_CancelledBeforeStart(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Minute, time.Minute).Start(ctx)

	assert.Zero(t, runs.Load())
}

func TestNew_Defaults(t *testing.T) {
	s := New(func(context.Context) error { return nil }, 0, -1)
	assert.Equal(t, DefaultInterval, s.Interval())
	assert.Equal(t, DefaultTimeout, s.timeout)
}
