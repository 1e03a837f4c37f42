package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/presence"
	"github.com/agentchat/internal/repository"
	"github.com/agentchat/internal/typing"
	"github.com/go-chi/chi/v5"
)

type PresenceHandler struct {
	rooms    *repository.RoomRepository
	presence *presence.Tracker
	typing   *typing.Tracker
	events   *bus.Bus
}

func NewPresenceHandler(rooms *repository.RoomRepository, pres *presence.Tracker, typ *typing.Tracker, events *bus.Bus) *PresenceHandler {
	return &PresenceHandler{rooms: rooms, presence: pres, typing: typ, events: events}
}

// List — кто сейчас подключён к стриму комнаты.
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, h.presence.List(room.ID))
}

type typingRequest struct {
	Name string `json:"name"`
}

type typingEvent struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// Signal регистрирует сигнал "печатает". Повтор в пределах dedup-окна
// принимается, но событие повторно не рассылается.
func (h *PresenceHandler) Signal(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Name) {
		badRequest(w, "invalid name")
		return
	}

	if h.typing.Signal(r.Context(), room.ID, req.Name) {
		publish(h.events, bus.KindTyping, room.ID, 0, typingEvent{RoomID: room.ID, Name: req.Name})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Typing — кто печатает в комнате прямо сейчас.
func (h *PresenceHandler) Typing(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, h.typing.List(room.ID))
}
