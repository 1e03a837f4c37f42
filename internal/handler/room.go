package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/agentchat/internal/adminkey"
	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/middleware"
	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/ratelimit"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RoomHandler struct {
	rooms    *repository.RoomRepository
	msgs     *repository.MessageRepository
	profiles *repository.ProfileRepository
	events   *bus.Bus
	limiter  *ratelimit.Limiter

	roomsPerHour int
}

func NewRoomHandler(
	rooms *repository.RoomRepository,
	msgs *repository.MessageRepository,
	profiles *repository.ProfileRepository,
	events *bus.Bus,
	limiter *ratelimit.Limiter,
	roomsPerHour int,
) *RoomHandler {
	return &RoomHandler{
		rooms:        rooms,
		msgs:         msgs,
		profiles:     profiles,
		events:       events,
		limiter:      limiter,
		roomsPerHour: roomsPerHour,
	}
}

// resolveRoom принимает id или имя комнаты: клиентам удобнее имя,
// агентам id.
func resolveRoom(ctx context.Context, rooms *repository.RoomRepository, ref string) (*model.Room, error) {
	if ref == "" {
		return nil, repository.ErrNotFound
	}
	room, err := rooms.GetByID(ctx, ref)
	if err == nil {
		return room, nil
	}
	return rooms.GetByName(ctx, ref)
}

type createRoomRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	CreatedBy        string `json:"created_by"`
	RetentionSeconds *int64 `json:"retention_seconds"`
}

// Create создаёт комнату и выпускает её админ-ключ. Ключ отдается
// в ответе один раз и больше нигде не появляется.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	info, err := h.limiter.Allow(r.Context(), "rooms", middleware.ClientIP(r), h.roomsPerHour, time.Hour)
	if err == nil {
		info.SetHeaders(w.Header(), time.Now())
		if !info.Allowed {
			writeError(w, http.StatusTooManyRequests, "room creation rate exceeded", "throttled")
			return
		}
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validRoomName(req.Name) {
		badRequest(w, "invalid room name")
		return
	}
	if !validDescription(req.Description) {
		badRequest(w, "description too long")
		return
	}
	if req.CreatedBy != "" && !validSender(req.CreatedBy) {
		badRequest(w, "invalid created_by")
		return
	}
	if req.RetentionSeconds != nil && *req.RetentionSeconds <= 0 {
		badRequest(w, "retention_seconds must be positive")
		return
	}

	key, hash, err := adminkey.Generate()
	if err != nil {
		logger.Errorf("room create: %v", err)
		internalError(w, "key generation failed")
		return
	}

	room := &model.Room{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Description:      req.Description,
		CreatedBy:        req.CreatedBy,
		RetentionSeconds: req.RetentionSeconds,
		AdminKeyHash:     hash,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.rooms.Create(r.Context(), room); err != nil {
		repoError(w, err, "room not found")
		return
	}
	room.UpdatedAt = room.CreatedAt

	publish(h.events, bus.KindRoomUpdated, room.ID, 0, room)
	writeJSON(w, http.StatusCreated, model.RoomWithAdminKey{Room: *room, AdminKey: key})
}

// List отдаёт комнаты. С ?sender= каждая строка несёт закладку и
// счётчик непрочитанного этого имени, закладки сортируются первыми.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	if sender := r.URL.Query().Get("sender"); sender != "" {
		entries, err := h.rooms.ListForSender(r.Context(), sender, includeArchived)
		if err != nil {
			repoError(w, err, "rooms unavailable")
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	rooms, err := h.rooms.List(r.Context(), includeArchived)
	if err != nil {
		repoError(w, err, "rooms unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type updateRoomRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	RetentionSeconds *int64  `json:"retention_seconds"`
	ClearRetention   bool    `json:"clear_retention"`
}

// Update меняет имя, описание или retention. Только с админ-ключом комнаты.
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	var req updateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if req.Name != nil && !validRoomName(*req.Name) {
		badRequest(w, "invalid room name")
		return
	}
	if req.Description != nil && !validDescription(*req.Description) {
		badRequest(w, "description too long")
		return
	}
	if req.RetentionSeconds != nil && *req.RetentionSeconds <= 0 {
		badRequest(w, "retention_seconds must be positive")
		return
	}

	updated, err := h.rooms.Update(r.Context(), room.ID, repository.RoomUpdate{
		Name:             req.Name,
		Description:      req.Description,
		RetentionSeconds: req.RetentionSeconds,
		ClearRetention:   req.ClearRetention,
	})
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	publish(h.events, bus.KindRoomUpdated, updated.ID, 0, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *RoomHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *RoomHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *RoomHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}

	updated, err := h.rooms.SetArchived(r.Context(), room.ID, archived)
	if errors.Is(err, repository.ErrConflict) {
		if archived {
			conflict(w, "already archived")
		} else {
			conflict(w, "not archived")
		}
		return
	}
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	kind := bus.KindRoomArchived
	if !archived {
		kind = bus.KindRoomUnarchived
	}
	publish(h.events, kind, updated.ID, 0, updated)
	writeJSON(w, http.StatusOK, updated)
}

// Delete уничтожает комнату со всем содержимым. Только админ-ключ комнаты.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if !requireRoomAdmin(w, r, room) {
		return
	}
	if err := h.rooms.Delete(r.Context(), room.ID); err != nil {
		repoError(w, err, "room not found")
		return
	}
	logger.Infof("room %s (%s) deleted", room.Name, room.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": room.ID})
}

// Participants — все, кто когда-либо писал в комнату, с профилями.
func (h *RoomHandler) Participants(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	participants, err := h.msgs.Participants(r.Context(), room.ID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	profiles, err := h.profiles.List(r.Context())
	if err == nil {
		byName := make(map[string]*model.Profile, len(profiles))
		for i := range profiles {
			byName[profiles[i].Name] = &profiles[i]
		}
		for i := range participants {
			participants[i].Profile = byName[participants[i].Name]
		}
	}
	writeJSON(w, http.StatusOK, participants)
}
