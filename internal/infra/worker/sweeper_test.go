//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeJobs struct {
	calls  atomic.Int32
	maxAge atomic.Int64
	err    error
}

func (f *fakeJobs) FailStale(_ context.Context, maxAge time.Duration) (int, error) {
	f.calls.Add(1)
	f.maxAge.Store(int64(maxAge))
	return 1, f.err
}

func TestStaleJobSweeper(t *testing.T) {
	t.Run("should pass its max age to FailStale", func(t *testing.T) {
		jobs := &fakeJobs{}
		s := NewStaleJobSweeper(jobs, 10*time.Minute, time.Second, nopLogger())
		s.SweepOnce(context.Background())
		if jobs.calls.Load() != 1 || time.Duration(jobs.maxAge.Load()) != 10*time.Minute {
			t.Fatalf("calls=%d maxAge=%v", jobs.calls.Load(), time.Duration(jobs.maxAge.Load()))
		}
	})

	t.Run("should survive a failing sweep", func(t *testing.T) {
		jobs := &fakeJobs{err: errors.New("boom")}
		s := NewStaleJobSweeper(jobs, time.Minute, time.Second, nopLogger())
		s.SweepOnce(context.Background())
		if jobs.calls.Load() != 1 {
			t.Fatalf("calls = %d", jobs.calls.Load())
		}
	})

	t.Run("should sweep on every tick through the pool", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := NewPool(1, 4, nopLogger())
		p.Start(ctx)
		defer p.Stop()

		jobs := &fakeJobs{}
		s := NewStaleJobSweeper(jobs, time.Minute, 5*time.Millisecond, nopLogger())
		done := make(chan struct{})
		go func() {
			s.Start(ctx, p)
			close(done)
		}()

		deadline := time.After(2 * time.Second)
		for jobs.calls.Load() < 2 {
			select {
			case <-deadline:
				t.Fatalf("only %d sweeps ran", jobs.calls.Load())
			case <-time.After(5 * time.Millisecond):
			}
		}
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})

	t.Run("should not run without a max age", func(t *testing.T) {
		jobs := &fakeJobs{}
		s := NewStaleJobSweeper(jobs, 0, time.Millisecond, nopLogger())
		s.Start(context.Background(), nil)
		if jobs.calls.Load() != 0 {
			t.Fatalf("calls = %d", jobs.calls.Load())
		}
	})
}
