package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

type BookmarkHandler struct {
	rooms     *repository.RoomRepository
	bookmarks *repository.BookmarkRepository
}

func NewBookmarkHandler(rooms *repository.RoomRepository, bookmarks *repository.BookmarkRepository) *BookmarkHandler {
	return &BookmarkHandler{rooms: rooms, bookmarks: bookmarks}
}

type bookmarkRequest struct {
	Sender string `json:"sender"`
}

// Add отмечает комнату в списке избранного. Повторный вызов безвреден.
func (h *BookmarkHandler) Add(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	var req bookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}

	if err := h.bookmarks.Add(r.Context(), req.Sender, room.ID); err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bookmarked", "room_id": room.ID})
}

func (h *BookmarkHandler) Remove(w http.ResponseWriter, r *http.Request) {
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

	if err := h.bookmarks.Remove(r.Context(), sender, room.ID); err != nil {
		repoError(w, err, "bookmark not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if !validSender(sender) {
		badRequest(w, "sender is required")
		return
	}

	out, err := h.bookmarks.List(r.Context(), sender)
	if err != nil {
		repoError(w, err, "bookmarks failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
