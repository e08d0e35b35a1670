package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTempMFAStore(t *testing.T) (*TempMFAStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTempMFAStore(client, ""), mr
}

func sampleTempMFAToken(ttl time.Duration) *TempMFAToken {
	return &TempMFAToken{
		AccountID: "acct-1",
		SessionID: "sess-1",
		IPHash:    sha256.Sum256([]byte("203.0.113.9")),
		UAHash:    sha256.Sum256([]byte("console/1.0")),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

func TestTempMFAConsumeRoundTrip(t *testing.T) {
	store, _ := newTempMFAStore(t)
	ctx := context.Background()

	want := sampleTempMFAToken(5 * time.Minute)
	if err := store.Save(ctx, "tok-1", want, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Consume(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.AccountID != want.AccountID || got.SessionID != want.SessionID {
		t.Fatalf("record mismatch: got %+v want %+v", got, want)
	}
	if got.IPHash != want.IPHash || got.UAHash != want.UAHash {
		t.Fatal("binding hashes did not survive the round trip")
	}
	if got.ExpiresAt != want.ExpiresAt {
		t.Fatalf("ExpiresAt mismatch: got %d want %d", got.ExpiresAt, want.ExpiresAt)
	}
}

func TestTempMFAConsumeIsSingleUse(t *testing.T) {
	store, _ := newTempMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", sampleTempMFAToken(5*time.Minute), 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1"); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if _, err := store.Consume(ctx, "tok-1"); !errors.Is(err, ErrTempMFANotFound) {
		t.Fatalf("second Consume: expected ErrTempMFANotFound, got %v", err)
	}
}

func TestTempMFAConsumeExpiredRecord(t *testing.T) {
	store, _ := newTempMFAStore(t)
	ctx := context.Background()

	// Record claims to be expired even though the Redis key is still live.
	record := sampleTempMFAToken(-time.Minute)
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1"); !errors.Is(err, ErrTempMFAExpired) {
		t.Fatalf("expected ErrTempMFAExpired, got %v", err)
	}
	// GETDEL already removed it, so a retry observes not-found.
	if _, err := store.Consume(ctx, "tok-1"); !errors.Is(err, ErrTempMFANotFound) {
		t.Fatalf("expected ErrTempMFANotFound after expiry consume, got %v", err)
	}
}

func TestTempMFAConsumeAfterTTLEviction(t *testing.T) {
	store, mr := newTempMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", sampleTempMFAToken(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "tok-1"); !errors.Is(err, ErrTempMFANotFound) {
		t.Fatalf("expected ErrTempMFANotFound after TTL eviction, got %v", err)
	}
}

func TestTempMFADelete(t *testing.T) {
	store, _ := newTempMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", sampleTempMFAToken(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deleted, err := store.Delete(ctx, "tok-1")
	if err != nil || !deleted {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = store.Delete(ctx, "tok-1")
	if err != nil || deleted {
		t.Fatalf("second Delete = (%v, %v), want (false, nil)", deleted, err)
	}
}
