package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{
		Action:  "platform.login",
		ActorID: "acct-1",
		Success: true,
	})

	select {
	case got := <-sink.Events():
		if got.Action != "platform.login" || got.ActorID != "acct-1" || !got.Success {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event never reached sink")
	}
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// nil receiver is safe to use.
	d.Emit(context.Background(), Event{Action: "noop"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	blocked := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blocked)
	defer d.Close()

	for i := 0; i < 64; i++ {
		d.Emit(context.Background(), Event{Action: "platform.login"})
	}
	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected drops with a saturated sink")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJSONWriterSinkEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Action:         "impersonation.start",
		ActorID:        "acct-1",
		TargetTenantID: "tenant-7",
		TargetUserID:   "user-9",
		Success:        true,
	})

	line := bytes.TrimSpace(buf.Bytes())
	var got Event
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("sink output is not valid JSON: %v", err)
	}
	if got.Action != "impersonation.start" || got.TargetTenantID != "tenant-7" {
		t.Fatalf("unexpected round-tripped event %+v", got)
	}
}
