package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

type CursorHandler struct {
	rooms   *repository.RoomRepository
	cursors *repository.CursorRepository
	events  *bus.Bus
}

func NewCursorHandler(rooms *repository.RoomRepository, cursors *repository.CursorRepository, events *bus.Bus) *CursorHandler {
	return &CursorHandler{rooms: rooms, cursors: cursors, events: events}
}

type advanceCursorRequest struct {
	Sender      string `json:"sender"`
	LastReadSeq int64  `json:"last_read_seq"`
}

// Advance двигает закладку чтения вперёд. Назад курсор не откатывается.
func (h *CursorHandler) Advance(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	var req advanceCursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}
	if req.LastReadSeq < 0 || req.LastReadSeq > room.LastSeq {
		badRequest(w, "last_read_seq is out of range")
		return
	}

	c, err := h.cursors.Advance(r.Context(), room.ID, req.Sender, req.LastReadSeq)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	publish(h.events, bus.KindReadCursorUpdated, room.ID, 0, c)
	writeJSON(w, http.StatusOK, c)
}

// Get отдаёт курсор одного читателя либо все курсоры комнаты.
func (h *CursorHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	if sender := r.URL.Query().Get("sender"); sender != "" {
		c, err := h.cursors.Get(r.Context(), room.ID, sender)
		if err != nil {
			repoError(w, err, "no read cursor for sender")
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	cursors, err := h.cursors.ListByRoom(r.Context(), room.ID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, cursors)
}

// Unread считает непрочитанное одного читателя в одной комнате.
func (h *CursorHandler) Unread(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	sender := r.URL.Query().Get("sender")
	if !validSender(sender) {
		badRequest(w, "sender is required")
		return
	}

	n, err := h.cursors.Unread(r.Context(), room.ID, sender)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": room.ID,
		"sender":  sender,
		"unread":  n,
	})
}

// Summary — непрочитанное по всем комнатам, где читатель отметился.
func (h *CursorHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if !validSender(sender) {
		badRequest(w, "sender is required")
		return
	}

	entries, err := h.cursors.Summary(r.Context(), sender)
	if err != nil {
		repoError(w, err, "unread summary failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
