// Package typing — индикаторы "печатает" с TTL и дедупликацией повторных сигналов.
// Дедуп идёт через storage.WindowStore, с Redis-бэкендом окно общее между инстансами.
package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/storage"
)

const pruneInterval = 30 * time.Second

type key struct {
	roomID string
	name   string
}

type Tracker struct {
	ttl     time.Duration
	dedup   time.Duration
	windows storage.WindowStore

	mu      sync.Mutex
	entries map[key]entryState

	now func() time.Time
}

type entryState struct {
	startedAt time.Time
	expiresAt time.Time
}

func NewTracker(ttl, dedup time.Duration, windows storage.WindowStore) *Tracker {
	return &Tracker{
		ttl:     ttl,
		dedup:   dedup,
		windows: windows,
		entries: make(map[key]entryState),
		now:     time.Now,
	}
}

func NewTrackerWithClock(ttl, dedup time.Duration, windows storage.WindowStore, now func() time.Time) *Tracker {
	t := NewTracker(ttl, dedup, windows)
	t.now = now
	return t
}

func markerKey(roomID, name string) string {
	return "typing:" + roomID + ":" + name
}

// Signal регистрирует сигнал печати. Возвращает true, если событие стоит
// рассылать: повтор в пределах dedup-окна гасится, но TTL продлевается.
func (t *Tracker) Signal(ctx context.Context, roomID, name string) bool {
	t.mu.Lock()
	now := t.now()
	k := key{roomID, name}

	st, active := t.entries[k]
	if !active || now.After(st.expiresAt) {
		st = entryState{startedAt: now}
	}
	st.expiresAt = now.Add(t.ttl)
	t.entries[k] = st
	t.mu.Unlock()

	fresh, err := t.windows.SetIfAbsent(ctx, markerKey(roomID, name), t.dedup)
	if err != nil {
		// при недоступном сторе лучше лишний сигнал, чем потерянный
		logger.Errorf("typing: dedup store: %v", err)
		return true
	}
	return fresh
}

// Stop снимает индикатор (вызывается при отправке сообщения).
func (t *Tracker) Stop(ctx context.Context, roomID, name string) {
	t.mu.Lock()
	delete(t.entries, key{roomID, name})
	t.mu.Unlock()
	if err := t.windows.Delete(ctx, markerKey(roomID, name)); err != nil {
		logger.Errorf("typing: drop marker: %v", err)
	}
}

// List возвращает тех, кто печатает сейчас, по алфавиту. Протухшие записи отсеиваются.
func (t *Tracker) List(roomID string) []model.TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := make([]model.TypingEntry, 0, 4)
	for k, st := range t.entries {
		if k.roomID != roomID {
			continue
		}
		if now.After(st.expiresAt) {
			delete(t.entries, k)
			continue
		}
		out = append(out, model.TypingEntry{RoomID: k.roomID, Name: k.name, StartedAt: st.startedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run периодически чистит протухшие записи, чтобы карта не росла на тихих комнатах.
func (t *Tracker) Run(done <-chan struct{}) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.prune()
		}
	}
}

func (t *Tracker) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, st := range t.entries {
		if now.After(st.expiresAt) {
			delete(t.entries, k)
		}
	}
}
