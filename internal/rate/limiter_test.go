package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, cfg), mr
}

func TestThrottleAfterMaxFailures(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "op@example.com", ""); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := l.RecordFailure(ctx, "op@example.com", ""); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	if err := l.Check(ctx, "op@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("want ErrThrottled, got %v", err)
	}
	// Other identities are unaffected.
	if err := l.Check(ctx, "other@example.com", ""); err != nil {
		t.Fatalf("unrelated email throttled: %v", err)
	}
}

func TestPerIPCounter(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 2, Window: time.Minute, PerIP: true})
	ctx := context.Background()

	// Two different emails from the same IP exhaust the IP budget.
	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := l.RecordFailure(ctx, email, "203.0.113.7"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := l.Check(ctx, "c@example.com", "203.0.113.7"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("want ErrThrottled by IP, got %v", err)
	}
	if err := l.Check(ctx, "c@example.com", "198.51.100.1"); err != nil {
		t.Fatalf("different IP throttled: %v", err)
	}
}

func TestWindowExpiry(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "op@example.com", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Check(ctx, "op@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("want ErrThrottled, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, "op@example.com", ""); err != nil {
		t.Fatalf("throttle survived window expiry: %v", err)
	}
}

func TestResetClearsCounters(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 1, Window: time.Minute, PerIP: true})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "op@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Reset(ctx, "op@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "op@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("check after reset: %v", err)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	ctx := context.Background()
	if err := l.Check(ctx, "op@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("nil check: %v", err)
	}
	if err := l.RecordFailure(ctx, "op@example.com", ""); err != nil {
		t.Fatalf("nil record: %v", err)
	}
}
