//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestPool_RunsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(2, 10, nopLogger())
	p.Start(ctx)
	defer p.Stop()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			n.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	if n.Load() != 5 {
		t.Fatalf("expected 5 runs, got %d", n.Load())
	}
}

func TestPool_SurvivesPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(1, 4, nopLogger())
	p.Start(ctx)
	defer p.Stop()

	done := make(chan struct{})
	_ = p.Submit(func(ctx context.Context) error { panic("boom") })
	_ = p.Submit(func(ctx context.Context) error { close(done); return nil })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestPool_QueueFull(t *testing.T) {
	// not started: nothing drains the queue
	p := NewPool(1, 1, nopLogger())
	noop := func(ctx context.Context) error { return nil }

	if err := p.Submit(noop); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(noop); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := p.Submit(nil); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1, 1, nopLogger())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull after stop, got %v", err)
	}
}

type fakeSweeper struct {
	calls  atomic.Int32
	maxAge time.Duration
}

func (f *fakeSweeper) FailStale(ctx context.Context, maxAge time.Duration) (int, error) {
	f.calls.Add(1)
	f.maxAge = maxAge
	return 1, nil
}

func TestStaleJobSweeper_SweepOnce(t *testing.T) {
	fs := &fakeSweeper{}
	s := NewStaleJobSweeper(fs, time.Minute, time.Second, nopLogger())
	s.SweepOnce(context.Background())
	if fs.calls.Load() != 1 || fs.maxAge != time.Minute {
		t.Fatalf("unexpected sweep: calls=%d maxAge=%v", fs.calls.Load(), fs.maxAge)
	}
}
