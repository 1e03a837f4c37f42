package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

type PinHandler struct {
	rooms  *repository.RoomRepository
	msgs   *repository.MessageRepository
	pins   *repository.PinRepository
	events *bus.Bus
}

func NewPinHandler(rooms *repository.RoomRepository, msgs *repository.MessageRepository, pins *repository.PinRepository, events *bus.Bus) *PinHandler {
	return &PinHandler{rooms: rooms, msgs: msgs, pins: pins, events: events}
}

type pinRequest struct {
	Sender string `json:"sender"`
}

// Pin закрепляет сообщение. Требует админ-ключ комнаты сообщения.
func (h *PinHandler) Pin(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil || m.Deleted {
		notFound(w, "message not found")
		return
	}
	room, err := h.rooms.GetByID(r.Context(), m.RoomID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}

	p, err := h.pins.Pin(r.Context(), m.RoomID, m.ID, req.Sender)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	publish(h.events, bus.KindMessagePinned, m.RoomID, 0, p)
	writeJSON(w, http.StatusCreated, p)
}

// Unpin снимает закреп. Повторный вызов отвечает 404.
func (h *PinHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	room, err := h.rooms.GetByID(r.Context(), m.RoomID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	if err := h.pins.Unpin(r.Context(), m.ID); err != nil {
		repoError(w, err, "message is not pinned")
		return
	}

	publish(h.events, bus.KindMessageUnpinned, m.RoomID, 0,
		map[string]string{"message_id": m.ID, "room_id": m.RoomID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpinned"})
}

func (h *PinHandler) List(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	pins, err := h.pins.ListByRoom(r.Context(), room.ID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, pins)
}
