package jobhistory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"report-scheduler/internal/store/memstore"
)

func newRedisClaimer(t *testing.T) *RedisClaimer {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisClaimer(client)
}

func claimers(t *testing.T) map[string]Claimer {
	return map[string]Claimer{
		"store": NewStoreClaimer(memstore.New()),
		"redis": newRedisClaimer(t),
	}
}

func TestClaimRespectsWindow(t *testing.T) {
	for name, c := range claimers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

			claim, err := c.Claim(ctx, "outbox", t0, time.Minute)
			if err != nil || !claim.Granted || claim.PreviousRun != nil {
				t.Fatalf("expected first claim granted without previous run, got %+v err=%v", claim, err)
			}
			claim, _ = c.Claim(ctx, "outbox", t0.Add(30*time.Second), time.Minute)
			if claim.Granted {
				t.Fatalf("expected claim inside window to be refused")
			}
			if claim.PreviousRun == nil || !claim.PreviousRun.Equal(t0) {
				t.Fatalf("expected previous run %s, got %v", t0, claim.PreviousRun)
			}
			claim, _ = c.Claim(ctx, "outbox", t0.Add(time.Minute), time.Minute)
			if !claim.Granted {
				t.Fatalf("expected claim after window to be granted")
			}
			claim, _ = c.Claim(ctx, "other", t0.Add(time.Minute), time.Minute)
			if !claim.Granted {
				t.Fatalf("jobs must not share a window")
			}
		})
	}
}

func TestForceClaim(t *testing.T) {
	for name, c := range claimers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
			if _, err := c.Claim(ctx, "mart", t0, time.Hour); err != nil {
				t.Fatalf("claim: %v", err)
			}
			claim, err := c.ForceClaim(ctx, "mart", t0.Add(time.Second))
			if err != nil || !claim.Granted {
				t.Fatalf("expected forced claim, got %+v err=%v", claim, err)
			}
			if claim.PreviousRun == nil || !claim.PreviousRun.Equal(t0) {
				t.Fatalf("unexpected previous run %v", claim.PreviousRun)
			}

			hist, err := c.History(ctx)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(hist) != 1 || hist[0].JobName != "mart" || !hist[0].LastRunAt.Equal(t0.Add(time.Second)) {
				t.Fatalf("unexpected history %+v", hist)
			}
		})
	}
}

func TestConcurrentClaimGrantsExactlyOne(t *testing.T) {
	for name, c := range claimers(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			var (
				wg      sync.WaitGroup
				granted atomic.Int32
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claim, err := c.Claim(context.Background(), "deactivation", now, time.Hour)
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					if claim.Granted {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()
			if got := granted.Load(); got != 1 {
				t.Fatalf("expected exactly one granted claim, got %d", got)
			}
		})
	}
}
