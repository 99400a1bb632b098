package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTokenBucket(client, capacity, refill, time.Minute)
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	bucket := newBucket(t, 2, 1)

	allowed, _, err := bucket.Allow(ctx, "smtp")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.Allow(ctx, "smtp")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _, _ = bucket.Allow(ctx, "smtp")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}
	allowed, _, _ = bucket.Allow(ctx, "other")
	if !allowed {
		t.Fatalf("keys must not share a bucket")
	}
}

func TestWaitGivesUpAfterMaxWait(t *testing.T) {
	ctx := context.Background()
	// Refill is far too slow to produce a token within the wait.
	bucket := newBucket(t, 1, 0.001)

	if ok, err := bucket.Wait(ctx, "smtp", time.Second); err != nil || !ok {
		t.Fatalf("expected immediate token, got ok=%v err=%v", ok, err)
	}
	start := time.Now()
	ok, err := bucket.Wait(ctx, "smtp", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ok {
		t.Fatalf("expected wait to time out")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("wait overran its deadline")
	}
}

func TestWaitRefills(t *testing.T) {
	ctx := context.Background()
	bucket := newBucket(t, 1, 20) // one token every 50ms

	_, _, _ = bucket.Allow(ctx, "smtp")
	ok, err := bucket.Wait(ctx, "smtp", 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected token after refill, got ok=%v err=%v", ok, err)
	}
}
