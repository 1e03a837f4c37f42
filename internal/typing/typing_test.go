package typing

import (
	"context"
	"testing"
	"time"

	"github.com/agentchat/internal/storage/memory"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := NewTrackerWithClock(4*time.Second, 2*time.Second, memory.NewWithClock(clock), clock)
	return tr, &now
}

func TestSignalDedup(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker()

	if !tr.Signal(ctx, "room1", "alice") {
		t.Fatalf("first signal must be broadcast")
	}
	*now = now.Add(time.Second)
	if tr.Signal(ctx, "room1", "alice") {
		t.Fatalf("repeat within dedup window must be suppressed")
	}
	*now = now.Add(1500 * time.Millisecond)
	if !tr.Signal(ctx, "room1", "alice") {
		t.Fatalf("signal after dedup window must be broadcast again")
	}
}

func TestSignalExtendsTTL(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker()

	tr.Signal(ctx, "room1", "alice")
	*now = now.Add(3 * time.Second)
	tr.Signal(ctx, "room1", "alice") // 3s > dedup, сигнал проходит и продлевает TTL
	*now = now.Add(3 * time.Second)

	if got := tr.List("room1"); len(got) != 1 {
		t.Fatalf("entry must still be alive 3s after the last signal, got %+v", got)
	}
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker()

	tr.Signal(ctx, "room1", "alice")
	*now = now.Add(5 * time.Second)
	if got := tr.List("room1"); len(got) != 0 {
		t.Fatalf("entry must expire after TTL, got %+v", got)
	}
}

func TestStopRemovesImmediately(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	tr.Signal(ctx, "room1", "alice")
	tr.Stop(ctx, "room1", "alice")
	if got := tr.List("room1"); len(got) != 0 {
		t.Fatalf("Stop must clear the entry, got %+v", got)
	}
	// после Stop новый сигнал не попадает под дедуп
	if !tr.Signal(ctx, "room1", "alice") {
		t.Errorf("signal after Stop must be broadcast")
	}
}

func TestStartedAtSurvivesRepeats(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker()
	started := *now

	tr.Signal(ctx, "room1", "alice")
	*now = now.Add(3 * time.Second)
	tr.Signal(ctx, "room1", "alice")

	got := tr.List("room1")
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if !got[0].StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want the time of the first signal %v", got[0].StartedAt, started)
	}
}

func TestListScopedToRoom(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()
	tr.Signal(ctx, "room1", "alice")
	tr.Signal(ctx, "room2", "bob")

	got := tr.List("room1")
	if len(got) != 1 || got[0].Name != "alice" {
		t.Errorf("room1 list = %+v, want only alice", got)
	}
}
