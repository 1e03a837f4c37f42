package bus

import (
	"fmt"
	"testing"
	"time"
)

func msgEvent(roomID string, seq int64) Event {
	return Event{
		Kind:   KindMessage,
		RoomID: roomID,
		Seq:    seq,
		Data:   []byte(fmt.Sprintf(`{"seq":%d}`, seq)),
	}
}

func recvOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestPublishDeliversToRoomSubscribers(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	sub := b.Subscribe("room1")
	other := b.Subscribe("room2")

	b.Publish(msgEvent("room1", 1))

	ev := recvOne(t, sub)
	if ev.Seq != 1 || ev.Kind != KindMessage {
		t.Errorf("got seq=%d kind=%s, want seq=1 kind=message", ev.Seq, ev.Kind)
	}
	select {
	case ev := <-other.C:
		t.Errorf("room2 subscriber got event for room1: %+v", ev)
	default:
	}
}

func TestGlobalSubscriberSeesAllRooms(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	all := b.Subscribe("")
	b.Publish(msgEvent("room1", 1))
	b.Publish(msgEvent("room2", 1))

	first := recvOne(t, all)
	second := recvOne(t, all)
	if first.RoomID == second.RoomID {
		t.Errorf("expected events from two rooms, got %s twice", first.RoomID)
	}
}

func TestPublishAllReachesEveryRoom(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	roomSub := b.Subscribe("room1")
	globalSub := b.Subscribe("")

	b.PublishAll(Event{Kind: KindProfileUpdated, Data: []byte(`{"name":"alice"}`)})

	for _, sub := range []*Subscription{roomSub, globalSub} {
		ev := recvOne(t, sub)
		if ev.Kind != KindProfileUpdated {
			t.Errorf("got kind=%s, want profile_updated", ev.Kind)
		}
	}

	// события без seq не должны попадать в replay-кольцо комнаты
	if events, _ := b.ReplaySince("room1", 0); len(events) != 0 {
		t.Errorf("ring picked up broadcast event: %+v", events)
	}
}

func TestReplaySinceFromRing(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	for i := int64(1); i <= 5; i++ {
		b.Publish(msgEvent("room1", i))
	}

	events, covered := b.ReplaySince("room1", 2)
	if !covered {
		t.Fatalf("ring holds seqs 1..5, replay from 2 must be covered")
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, ev := range events {
		if want := int64(3 + i); ev.Seq != want {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, want)
		}
	}
}

func TestReplaySinceRingEvicted(t *testing.T) {
	b := New(3, 4)
	defer b.Close()

	for i := int64(1); i <= 10; i++ {
		b.Publish(msgEvent("room1", i))
	}

	// кольцо держит 8,9,10; запрос с 2 не покрыт
	_, covered := b.ReplaySince("room1", 2)
	if covered {
		t.Errorf("replay from 2 should not be covered by ring of capacity 3")
	}

	events, covered := b.ReplaySince("room1", 7)
	if !covered {
		t.Errorf("replay from 7 should be covered (oldest ring seq is 8)")
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestHighWaterAndPrime(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	if got := b.HighWater("room1"); got != 0 {
		t.Fatalf("fresh room high water = %d, want 0", got)
	}
	b.Prime("room1", 42)
	if got := b.HighWater("room1"); got != 42 {
		t.Errorf("after Prime high water = %d, want 42", got)
	}

	// Prime не откатывает назад
	b.Prime("room1", 10)
	if got := b.HighWater("room1"); got != 42 {
		t.Errorf("Prime rolled high water back to %d", got)
	}

	// после рестарта кольцо пустое, но high water > 0: replay не покрыт
	if _, covered := b.ReplaySince("room1", 5); covered {
		t.Errorf("empty ring with high water 42 should not cover replay from 5")
	}
	if _, covered := b.ReplaySince("room1", 42); !covered {
		t.Errorf("replay from the high water mark needs no history")
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	b := New(64, 2)
	defer b.Close()

	sub := b.Subscribe("room1")
	// буфер на 2 события, третье переполняет и отключает подписчика
	for i := int64(1); i <= 3; i++ {
		b.Publish(msgEvent("room1", i))
	}

	got := 0
	for range sub.C {
		got++
	}
	if got != 2 {
		t.Errorf("received %d buffered events, want 2", got)
	}
	if !sub.Dropped() {
		t.Errorf("subscription must be marked dropped")
	}
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	b := New(8, 4)
	sub := b.Subscribe("room1")
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Errorf("channel must be closed after bus Close")
	}
	// публикация после Close не должна паниковать
	b.Publish(msgEvent("room1", 1))
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New(8, 4)
	defer b.Close()

	sub := b.Subscribe("room1")
	sub.Close()
	sub.Close()

	b.Publish(msgEvent("room1", 1))
	if _, ok := <-sub.C; ok {
		t.Errorf("closed subscription must not receive events")
	}
}
