// Package presence отслеживает, кто сейчас подключён к стриму комнаты.
// Одно имя может держать несколько подключений, присутствие снимается
// только когда закрылось последнее.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/agentchat/internal/model"
)

type entry struct {
	connections int
	senderType  string
	since       time.Time
}

type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*entry

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]map[string]*entry), now: time.Now}
}

func NewTrackerWithClock(now func() time.Time) *Tracker {
	t := NewTracker()
	t.now = now
	return t
}

// Join регистрирует подключение. Возвращает true, если имя появилось в комнате
// (первое подключение), тогда вызывающий публикует presence_joined.
func (t *Tracker) Join(roomID, name, senderType string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]*entry)
		t.rooms[roomID] = room
	}
	e, ok := room[name]
	if !ok {
		room[name] = &entry{connections: 1, senderType: senderType, since: t.now()}
		return true
	}
	e.connections++
	if senderType != "" {
		e.senderType = senderType
	}
	return false
}

// Leave снимает подключение. Возвращает true, когда имя ушло из комнаты
// (закрылось последнее подключение), тогда публикуется presence_left.
func (t *Tracker) Leave(roomID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	e, ok := room[name]
	if !ok {
		return false
	}
	e.connections--
	if e.connections > 0 {
		return false
	}
	delete(room, name)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// List возвращает присутствующих в комнате по алфавиту.
func (t *Tracker) List(roomID string) []model.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room := t.rooms[roomID]
	out := make([]model.PresenceEntry, 0, len(room))
	for name, e := range room {
		out = append(out, model.PresenceEntry{
			RoomID:      roomID,
			Name:        name,
			SenderType:  e.senderType,
			Connections: e.connections,
			Since:       e.since,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count — суммарное число подключений по всем комнатам (для /stats).
func (t *Tracker) Count() (names, connections int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, room := range t.rooms {
		names += len(room)
		for _, e := range room {
			connections += e.connections
		}
	}
	return names, connections
}
