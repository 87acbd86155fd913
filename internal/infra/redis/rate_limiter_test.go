//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Ping(ctx context.Context) error { return nil }
func (f *fakeCounter) Incr(ctx context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}
func (f *fakeCounter) Expire(ctx context.Context, key string, d time.Duration) error {
	f.expires[key] = d
	return nil
}
func (f *fakeCounter) Del(ctx context.Context, keys ...string) error { return nil }
func (f *fakeCounter) Close() error                                  { return nil }

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow up to the limit and set the window once", func(t *testing.T) {
		fc := newFakeCounter()
		rl := NewRateLimiter(fc, 2, time.Minute)
		key := "ask:job-1"

		for i, want := range []bool{true, true, false} {
			got, err := rl.Allow(ctx, key)
			if err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
			if got != want {
				t.Fatalf("call %d: got %v want %v", i, got, want)
			}
		}
		if fc.expires["rate_limit:ask:job-1"] != time.Minute {
			t.Fatalf("expected window set on first hit, got %v", fc.expires["rate_limit:ask:job-1"])
		}
	})

	t.Run("should always allow with no limit", func(t *testing.T) {
		rl := NewRateLimiter(newFakeCounter(), 0, time.Minute)
		for i := 0; i < 5; i++ {
			if ok, _ := rl.Allow(ctx, "k"); !ok {
				t.Fatal("expected allow")
			}
		}
	})

	t.Run("should surface redis errors", func(t *testing.T) {
		fc := newFakeCounter()
		fc.err = errors.New("down")
		rl := NewRateLimiter(fc, 1, time.Minute)
		if _, err := rl.Allow(ctx, "k"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	out := blobToFloat32(float32ToBlob(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: %v != %v", i, in[i], out[i])
		}
	}
}
