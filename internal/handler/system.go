package handler

import (
	"net/http"
	"time"

	"github.com/agentchat/internal/config"
	"github.com/agentchat/internal/middleware"
	"github.com/agentchat/internal/presence"
	"github.com/agentchat/internal/ratelimit"
	"github.com/agentchat/internal/repository"
)

type SystemHandler struct {
	rooms    *repository.RoomRepository
	msgs     *repository.MessageRepository
	files    *repository.FileRepository
	presence *presence.Tracker
	limiter  *ratelimit.Limiter
	limits   config.RateLimitConfig

	startedAt time.Time
}

func NewSystemHandler(
	rooms *repository.RoomRepository,
	msgs *repository.MessageRepository,
	files *repository.FileRepository,
	pres *presence.Tracker,
	limiter *ratelimit.Limiter,
	limits config.RateLimitConfig,
) *SystemHandler {
	return &SystemHandler{
		rooms:     rooms,
		msgs:      msgs,
		files:     files,
		presence:  pres,
		limiter:   limiter,
		limits:    limits,
		startedAt: time.Now(),
	}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats — сводные счётчики сервера.
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	roomCount, err := h.rooms.Count(r.Context())
	if err != nil {
		repoError(w, err, "stats failed")
		return
	}
	msgCount, err := h.msgs.Count(r.Context())
	if err != nil {
		repoError(w, err, "stats failed")
		return
	}
	fileBytes, err := h.files.TotalBytes(r.Context())
	if err != nil {
		repoError(w, err, "stats failed")
		return
	}
	names, connections := h.presence.Count()

	writeJSON(w, http.StatusOK, map[string]any{
		"rooms":          roomCount,
		"messages":       msgCount,
		"file_bytes":     fileBytes,
		"online":         names,
		"connections":    connections,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Limits показывает остатки окон вызывающего без списания попыток.
func (h *SystemHandler) Limits(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)
	scopes := []struct {
		scope  string
		limit  int
		window time.Duration
	}{
		{"messages", h.limits.MessagesPerMinute, time.Minute},
		{"uploads", h.limits.UploadsPerMinute, time.Minute},
		{"rooms", h.limits.RoomsPerHour, time.Hour},
	}
	out := make(map[string]any, len(scopes))
	for _, s := range scopes {
		info, err := h.limiter.Status(r.Context(), s.scope, ip, s.limit, s.window)
		if err != nil {
			repoError(w, err, "limits failed")
			return
		}
		out[s.scope] = map[string]any{
			"limit":     info.Limit,
			"remaining": info.Remaining,
			"reset_at":  info.ResetAt.Unix(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Activity — последние сообщения по всем комнатам, с фильтрами
// room, sender и sender_type.
func (h *SystemHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	roomID := ""
	if ref := r.URL.Query().Get("room"); ref != "" {
		room, err := resolveRoom(r.Context(), h.rooms, ref)
		if err != nil {
			repoError(w, err, "room not found")
			return
		}
		roomID = room.ID
	}
	senderType := r.URL.Query().Get("sender_type")
	if senderType != "" {
		if _, ok := normalizeSenderType(senderType); !ok {
			badRequest(w, "invalid sender_type")
			return
		}
	}

	msgs, err := h.msgs.ListRecent(r.Context(), roomID, r.URL.Query().Get("sender"), senderType, limit)
	if err != nil {
		repoError(w, err, "activity failed")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
