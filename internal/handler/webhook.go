package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type WebhookHandler struct {
	rooms *repository.RoomRepository
	hooks *repository.WebhookRepository
}

func NewWebhookHandler(rooms *repository.RoomRepository, hooks *repository.WebhookRepository) *WebhookHandler {
	return &WebhookHandler{rooms: rooms, hooks: hooks}
}

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Create регистрирует подписку на события комнаты. Требует админ-ключ.
// Если secret не задан, он генерируется и возвращается один раз.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validWebhookURL(req.URL) {
		badRequest(w, "url must be absolute http(s)")
		return
	}
	if req.Secret == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			internalError(w, "secret generation failed")
			return
		}
		req.Secret = hex.EncodeToString(buf)
	}
	if req.Events == nil {
		req.Events = []string{}
	}

	wh := &model.Webhook{
		ID:        uuid.New().String(),
		RoomID:    room.ID,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.hooks.Create(r.Context(), wh); err != nil {
		repoError(w, err, "room not found")
		return
	}

	// secret отдаём только в ответе на создание
	writeJSON(w, http.StatusCreated, struct {
		*model.Webhook
		Secret string `json:"secret"`
	}{wh, wh.Secret})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	hooks, err := h.hooks.ListByRoom(r.Context(), room.ID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	wh, err := h.hooks.GetByID(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil || wh.RoomID != room.ID {
		notFound(w, "webhook not found")
		return
	}
	if err := h.hooks.Delete(r.Context(), wh.ID); err != nil {
		repoError(w, err, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
