package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ReactionHandler struct {
	rooms     *repository.RoomRepository
	msgs      *repository.MessageRepository
	reactions *repository.ReactionRepository
	events    *bus.Bus
}

func NewReactionHandler(rooms *repository.RoomRepository, msgs *repository.MessageRepository, reactions *repository.ReactionRepository, events *bus.Bus) *ReactionHandler {
	return &ReactionHandler{rooms: rooms, msgs: msgs, reactions: reactions, events: events}
}

type reactionRequest struct {
	Sender string `json:"sender"`
	Emoji  string `json:"emoji"`
}

type reactionEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	Sender    string `json:"sender"`
	Emoji     string `json:"emoji"`
}

// Toggle ставит реакцию, повторный вызов с той же тройкой снимает её.
func (h *ReactionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}
	if !validEmoji(req.Emoji) {
		badRequest(w, "invalid emoji")
		return
	}

	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	if m.Deleted {
		notFound(w, "message not found")
		return
	}

	added, err := h.reactions.Toggle(r.Context(), m.ID, req.Sender, req.Emoji)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	ev := reactionEvent{MessageID: m.ID, RoomID: m.RoomID, Sender: req.Sender, Emoji: req.Emoji}
	kind := bus.KindReactionAdded
	status := "added"
	if !added {
		kind = bus.KindReactionRemoved
		status = "removed"
	}
	publish(h.events, kind, m.RoomID, 0, ev)
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "emoji": req.Emoji})
}

func (h *ReactionHandler) List(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	groups, err := h.reactions.Groups(r.Context(), m.ID)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListByRoom отдаёт все реакции комнаты плоским списком.
func (h *ReactionHandler) ListByRoom(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	reactions, err := h.reactions.ListByRoom(r.Context(), room.ID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}
