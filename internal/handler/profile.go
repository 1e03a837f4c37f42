package handler

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ProfileHandler struct {
	profiles *repository.ProfileRepository
	events   *bus.Bus
}

func NewProfileHandler(profiles *repository.ProfileRepository, events *bus.Bus) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, events: events}
}

type upsertProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
}

func (h *ProfileHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validSender(name) {
		badRequest(w, "invalid name")
		return
	}
	var req upsertProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if utf8.RuneCountInString(req.DisplayName) > maxNameLen {
		badRequest(w, "display_name too long")
		return
	}
	if utf8.RuneCountInString(req.Bio) > maxDescriptionLen {
		badRequest(w, "bio too long")
		return
	}
	if len(req.AvatarURL) > 2048 {
		badRequest(w, "avatar_url too long")
		return
	}

	p, err := h.profiles.Upsert(r.Context(), &model.Profile{
		Name:        name,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
	})
	if err != nil {
		repoError(w, err, "profile not found")
		return
	}
	// профили не привязаны к комнате, событие видно на каждом стриме
	publishAll(h.events, bus.KindProfileUpdated, p)
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		repoError(w, err, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		repoError(w, err, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.profiles.Delete(r.Context(), name); err != nil {
		repoError(w, err, "profile not found")
		return
	}
	publishAll(h.events, bus.KindProfileDeleted, map[string]string{"name": name})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}
