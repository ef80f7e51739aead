package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS = 1 token every 100ms, burst 1.
	l := New(Config{
		RequestsPerSecond: 10,
		Burst:             1,
	})

	ctx := context.Background()

	// First call should be immediate.
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// Next one should wait ~100ms.
	start = time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DisabledNeverBlocks(t *testing.T) {
	l := New(Config{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unbounded limiter blocked for %v", time.Since(start))
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error when the context expires before a token is available")
	}
}
