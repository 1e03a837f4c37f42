// Package bus — процесс-локальная шина событий с replay-кольцом на комнату.
// Подписчики получают события через ограниченный канал; отстающий подписчик
// отключается, чтобы не тормозить остальных.
package bus

import (
	"sync"

	"github.com/agentchat/internal/logger"
)

type Subscription struct {
	C      <-chan Event
	ch     chan Event
	roomID string
	all    bool
	bus    *Bus

	closeOnce sync.Once
	// dropped выставляется шиной при переполнении канала
	dropped bool
}

// Dropped сообщает, был ли подписчик отключён за отставание.
func (s *Subscription) Dropped() bool {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

type roomState struct {
	// кольцо последних событий-сообщений комнаты
	ring  []Event
	head  int
	count int
	// последний seq, прошедший через шину (может опережать кольцо после рестарта)
	lastSeq int64
	subs    map[*Subscription]struct{}
}

type Bus struct {
	mu      sync.RWMutex
	rooms   map[string]*roomState
	global  map[*Subscription]struct{}
	ringCap int
	subBuf  int
	closed  bool
}

func New(ringCap, subBuf int) *Bus {
	if ringCap <= 0 {
		ringCap = 256
	}
	if subBuf <= 0 {
		subBuf = 64
	}
	return &Bus{
		rooms:   make(map[string]*roomState),
		global:  make(map[*Subscription]struct{}),
		ringCap: ringCap,
		subBuf:  subBuf,
	}
}

func (b *Bus) room(id string) *roomState {
	rs, ok := b.rooms[id]
	if !ok {
		rs = &roomState{
			ring: make([]Event, b.ringCap),
			subs: make(map[*Subscription]struct{}),
		}
		b.rooms[id] = rs
	}
	return rs
}

// Publish рассылает событие подписчикам комнаты и глобальным подписчикам.
// События с Seq > 0 дополнительно попадают в replay-кольцо комнаты.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	rs := b.room(ev.RoomID)
	if ev.Seq > 0 {
		rs.ring[rs.head] = ev
		rs.head = (rs.head + 1) % b.ringCap
		if rs.count < b.ringCap {
			rs.count++
		}
		if ev.Seq > rs.lastSeq {
			rs.lastSeq = ev.Seq
		}
	}

	var lagged []*Subscription
	deliver := func(s *Subscription) {
		select {
		case s.ch <- ev:
		default:
			s.dropped = true
			lagged = append(lagged, s)
		}
	}
	for s := range rs.subs {
		deliver(s)
	}
	for s := range b.global {
		deliver(s)
	}
	for _, s := range lagged {
		b.removeLocked(s)
	}
	b.mu.Unlock()

	for _, s := range lagged {
		logger.Errorf("bus: slow subscriber dropped room=%s kind=%s", ev.RoomID, ev.Kind)
		s.closeOnce.Do(func() { close(s.ch) })
	}
}

// PublishAll рассылает событие без привязки к комнате всем подписчикам,
// комнатным и глобальным. В replay-кольца такие события не попадают.
func (b *Bus) PublishAll(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	var lagged []*Subscription
	deliver := func(s *Subscription) {
		select {
		case s.ch <- ev:
		default:
			s.dropped = true
			lagged = append(lagged, s)
		}
	}
	for _, rs := range b.rooms {
		for s := range rs.subs {
			deliver(s)
		}
	}
	for s := range b.global {
		deliver(s)
	}
	for _, s := range lagged {
		b.removeLocked(s)
	}
	b.mu.Unlock()

	for _, s := range lagged {
		logger.Errorf("bus: slow subscriber dropped kind=%s", ev.Kind)
		s.closeOnce.Do(func() { close(s.ch) })
	}
}

// Subscribe подписывает на события одной комнаты. Пустой roomID — на все комнаты.
func (b *Bus) Subscribe(roomID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{
		ch:     make(chan Event, b.subBuf),
		roomID: roomID,
		all:    roomID == "",
		bus:    b,
	}
	s.C = s.ch
	if b.closed {
		s.closeOnce.Do(func() { close(s.ch) })
		return s
	}
	if s.all {
		b.global[s] = struct{}{}
	} else {
		b.room(roomID).subs[s] = struct{}{}
	}
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	removed := b.removeLocked(s)
	b.mu.Unlock()
	if removed {
		s.closeOnce.Do(func() { close(s.ch) })
	}
}

// removeLocked убирает подписку из реестров. Канал закрывает вызывающий вне мьютекса.
func (b *Bus) removeLocked(s *Subscription) bool {
	if s.all {
		if _, ok := b.global[s]; !ok {
			return false
		}
		delete(b.global, s)
		return true
	}
	rs, ok := b.rooms[s.roomID]
	if !ok {
		return false
	}
	if _, ok := rs.subs[s]; !ok {
		return false
	}
	delete(rs.subs, s)
	return true
}

// ReplaySince возвращает события кольца с Seq > sinceSeq по порядку.
// covered=false означает, что кольцо не дотягивается до sinceSeq и недостающее
// надо поднимать из БД.
func (b *Bus) ReplaySince(roomID string, sinceSeq int64) (events []Event, covered bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rs, ok := b.rooms[roomID]
	if !ok || rs.count == 0 {
		// пустое кольцо покрывает только "с текущего момента"
		return nil, sinceSeq >= b.highWaterLocked(roomID)
	}
	oldestIdx := (rs.head - rs.count + b.ringCap) % b.ringCap
	oldest := rs.ring[oldestIdx]
	covered = sinceSeq >= oldest.Seq-1
	for i := 0; i < rs.count; i++ {
		ev := rs.ring[(oldestIdx+i)%b.ringCap]
		if ev.Seq > sinceSeq {
			events = append(events, ev)
		}
	}
	return events, covered
}

// HighWater — последний seq комнаты, виденный шиной.
func (b *Bus) HighWater(roomID string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.highWaterLocked(roomID)
}

func (b *Bus) highWaterLocked(roomID string) int64 {
	if rs, ok := b.rooms[roomID]; ok {
		return rs.lastSeq
	}
	return 0
}

// Prime выставляет high-water комнаты (при старте из rooms.last_seq),
// чтобы replay после рестарта честно уходил в store-fallback.
func (b *Bus) Prime(roomID string, lastSeq int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs := b.room(roomID)
	if lastSeq > rs.lastSeq {
		rs.lastSeq = lastSeq
	}
}

// Close отключает всех подписчиков. Дальнейшие Publish игнорируются.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for s := range b.global {
		all = append(all, s)
	}
	b.global = make(map[*Subscription]struct{})
	for _, rs := range b.rooms {
		for s := range rs.subs {
			all = append(all, s)
		}
		rs.subs = make(map[*Subscription]struct{})
	}
	b.mu.Unlock()

	for _, s := range all {
		s.closeOnce.Do(func() { close(s.ch) })
	}
}
