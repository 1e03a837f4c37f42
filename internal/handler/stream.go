package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/presence"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

// replayBatch — размер страницы при добирании пропущенных сообщений из БД.
const replayBatch = 500

type StreamHandler struct {
	rooms    *repository.RoomRepository
	msgs     *repository.MessageRepository
	presence *presence.Tracker
	events   *bus.Bus

	heartbeat time.Duration
}

func NewStreamHandler(
	rooms *repository.RoomRepository,
	msgs *repository.MessageRepository,
	pres *presence.Tracker,
	events *bus.Bus,
	heartbeat time.Duration,
) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{rooms: rooms, msgs: msgs, presence: pres, events: events, heartbeat: heartbeat}
}

// Stream держит SSE-соединение с комнатой: сначала догоняет клиента с
// позиции after, затем транслирует живые события до разрыва.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, "streaming unsupported")
		return
	}

	after := queryInt64(r, "after", 0)
	if after == 0 {
		// старое имя параметра, оставлено для совместимости
		after = queryInt64(r, "since_seq", 0)
	}
	if after < 0 {
		after = 0
	}

	sender := r.URL.Query().Get("sender")
	senderType := ""
	if sender != "" {
		if !validSender(sender) {
			badRequest(w, "invalid sender")
			return
		}
		senderType, ok = normalizeSenderType(r.URL.Query().Get("sender_type"))
		if !ok {
			badRequest(w, "invalid sender_type")
			return
		}
	}

	// подписка до replay, чтобы не потерять события в просвете
	sub := h.events.Subscribe(room.ID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if sender != "" {
		if h.presence.Join(room.ID, sender, senderType) {
			publish(h.events, bus.KindPresenceJoined, room.ID, 0,
				map[string]string{"room_id": room.ID, "name": sender, "sender_type": senderType})
		}
		defer func() {
			if h.presence.Leave(room.ID, sender) {
				publish(h.events, bus.KindPresenceLeft, room.ID, 0,
					map[string]string{"room_id": room.ID, "name": sender})
			}
		}()
	}

	lastSent, err := h.replay(w, r, room.ID, after)
	if err != nil {
		// клиент ушёл или БД недоступна, соединение уже не спасти
		logger.Errorf("stream: replay room=%s: %v", room.ID, err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				// отключённый за отставание клиент должен узнать о пропуске
				if sub.Dropped() {
					writeGap(w)
					flusher.Flush()
				}
				return
			}
			if ev.Seq > 0 && ev.Seq <= lastSent {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			if ev.Seq > lastSent {
				lastSent = ev.Seq
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// replay досылает клиенту сообщения с Seq > after: из кольца шины, когда оно
// покрывает позицию, иначе страницами из БД до high-water на момент подписки.
func (h *StreamHandler) replay(w http.ResponseWriter, r *http.Request, roomID string, after int64) (int64, error) {
	lastSent := after
	highWater := h.events.HighWater(roomID)
	if after >= highWater {
		return lastSent, nil
	}

	ringEvents, covered := h.events.ReplaySince(roomID, after)
	if covered {
		for _, ev := range ringEvents {
			if err := writeSSE(w, ev); err != nil {
				return lastSent, err
			}
			lastSent = ev.Seq
		}
		return lastSent, nil
	}

	// кольцо не дотягивается до after, часть истории могла быть удалена
	if err := writeGap(w); err != nil {
		return lastSent, err
	}

	for lastSent < highWater {
		batch, err := h.msgs.List(r.Context(), roomID, repository.ListParams{
			SinceSeq:  lastSent,
			Limit:     replayBatch,
			Ascending: true,
		})
		if err != nil {
			return lastSent, err
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			if batch[i].Seq > highWater {
				return lastSent, nil
			}
			data, err := json.Marshal(&batch[i])
			if err != nil {
				return lastSent, err
			}
			ev := bus.Event{Kind: bus.KindMessage, RoomID: roomID, Seq: batch[i].Seq, Data: data}
			if err := writeSSE(w, ev); err != nil {
				return lastSent, err
			}
			lastSent = batch[i].Seq
		}
	}
	return lastSent, nil
}

// writeSSE сериализует событие в wire-формат SSE. Seq сообщения идёт в id:,
// чтобы клиент мог переподключиться с последней виденной позиции.
func writeSSE(w io.Writer, ev bus.Event) error {
	if ev.Seq > 0 {
		_, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Kind, ev.Seq, ev.Data)
		return err
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, ev.Data)
	return err
}

// writeGap сообщает клиенту о пропуске в потоке, дальше он сверяется через after=.
func writeGap(w io.Writer) error {
	_, err := fmt.Fprint(w, "event: gap\ndata: {\"gap\":true}\n\n")
	return err
}
