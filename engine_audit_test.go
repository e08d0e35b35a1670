package platauth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQueryAuditClampsLimit(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		entry := NewAuditEntry("tenant.view", "acct-"+strconv.Itoa(i%3))
		if err := h.engine.appendAudit(ctx, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// Zero limit falls back to the configured maximum.
	page, total, err := h.engine.QueryAudit(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 120 {
		t.Fatalf("total = %d, want 120", total)
	}
	if len(page) != h.config.Audit.QueryMaxLimit {
		t.Fatalf("page size = %d, want %d", len(page), h.config.Audit.QueryMaxLimit)
	}

	// Oversized limits clamp instead of erroring.
	page, _, err = h.engine.QueryAudit(ctx, AuditFilter{Limit: 10_000})
	if err != nil {
		t.Fatalf("oversized query: %v", err)
	}
	if len(page) != h.config.Audit.QueryMaxLimit {
		t.Fatalf("clamped page size = %d, want %d", len(page), h.config.Audit.QueryMaxLimit)
	}
}

func TestQueryAuditFilters(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		action := "tenant.view"
		if i%2 == 0 {
			action = "tenant.suspend"
		}
		if err := h.engine.appendAudit(ctx, NewAuditEntry(action, "acct-1")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, total, err := h.engine.QueryAudit(ctx, AuditFilter{Action: "tenant.suspend", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("got (%d entries, total %d), want (2, 3)", len(page), total)
	}
	for _, e := range page {
		if e.Action != "tenant.suspend" {
			t.Fatalf("filter leak: %+v", e)
		}
	}
}

func TestAuditMirrorChannelSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := NewChannelSink(8)
	audit := &memAuditStore{}

	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(client).
		WithAccountProvider(newFakeAccounts()).
		WithDirectoryProvider(&fakeDirectory{}).
		WithAuditStore(audit).
		WithImpersonationStore(newMemImpStore()).
		WithAuditMirror(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	if err := engine.appendAudit(ctx, NewAuditEntry("tenant.view", "acct-1")); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.Action != "tenant.view" || ev.ActorID != "acct-1" {
			t.Fatalf("unexpected mirrored event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mirrored event never arrived")
	}

	// The ledger saw the entry too; the mirror never replaces it.
	if len(audit.entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(audit.entries))
	}
}
