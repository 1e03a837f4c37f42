package handler

import (
	"strings"
	"testing"

	"github.com/agentchat/internal/bus"
)

func TestWriteSSEFrames(t *testing.T) {
	var b strings.Builder
	ev := bus.Event{Kind: bus.KindMessage, RoomID: "r1", Seq: 7, Data: []byte(`{"a":1}`)}
	if err := writeSSE(&b, ev); err != nil {
		t.Fatalf("writeSSE: %v", err)
	}
	if got, want := b.String(), "event: message\nid: 7\ndata: {\"a\":1}\n\n"; got != want {
		t.Errorf("with seq: got %q, want %q", got, want)
	}

	b.Reset()
	ev = bus.Event{Kind: bus.KindTyping, RoomID: "r1", Data: []byte(`{}`)}
	if err := writeSSE(&b, ev); err != nil {
		t.Fatalf("writeSSE: %v", err)
	}
	if got := b.String(); strings.Contains(got, "id:") {
		t.Errorf("seq 0 frame must not carry id: %q", got)
	}
}

// Клиент, отключённый за отставание, получает gap-кадр перед закрытием потока.
func TestWriteGapFrame(t *testing.T) {
	var b strings.Builder
	if err := writeGap(&b); err != nil {
		t.Fatalf("writeGap: %v", err)
	}
	if got, want := b.String(), "event: gap\ndata: {\"gap\":true}\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
