package presence

import "testing"

func TestJoinLeaveRefcount(t *testing.T) {
	tr := NewTracker()

	if !tr.Join("room1", "alice", "human") {
		t.Fatalf("first join must report appearance")
	}
	if tr.Join("room1", "alice", "human") {
		t.Fatalf("second connection must not report appearance")
	}

	list := tr.List("room1")
	if len(list) != 1 || list[0].Connections != 2 {
		t.Fatalf("got %+v, want alice with 2 connections", list)
	}
	if list[0].SenderType != "human" {
		t.Fatalf("got sender_type %q, want human", list[0].SenderType)
	}

	if tr.Leave("room1", "alice") {
		t.Fatalf("leave with one connection remaining must not report departure")
	}
	if !tr.Leave("room1", "alice") {
		t.Fatalf("final leave must report departure")
	}
	if got := tr.List("room1"); len(got) != 0 {
		t.Fatalf("room should be empty, got %+v", got)
	}
}

func TestJoinUpdatesSenderType(t *testing.T) {
	tr := NewTracker()
	tr.Join("room1", "bot-7", "")
	tr.Join("room1", "bot-7", "agent")

	list := tr.List("room1")
	if len(list) != 1 || list[0].SenderType != "agent" {
		t.Fatalf("got %+v, want bot-7 as agent", list)
	}
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	if tr.Leave("room1", "ghost") {
		t.Errorf("leaving a room never joined must not report departure")
	}
}

func TestListSorted(t *testing.T) {
	tr := NewTracker()
	tr.Join("room1", "zoe", "human")
	tr.Join("room1", "alice", "human")
	tr.Join("room1", "bot-7", "agent")

	list := tr.List("room1")
	if len(list) != 3 {
		t.Fatalf("got %d entries, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Errorf("list not sorted: %s before %s", list[i-1].Name, list[i].Name)
		}
	}
}

func TestCountAcrossRooms(t *testing.T) {
	tr := NewTracker()
	tr.Join("room1", "alice", "human")
	tr.Join("room1", "alice", "human")
	tr.Join("room2", "bob", "human")

	names, conns := tr.Count()
	if names != 2 || conns != 3 {
		t.Errorf("Count() = (%d, %d), want (2, 3)", names, conns)
	}
}
