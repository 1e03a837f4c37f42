package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/repository"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg, "bad_request")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg, "not_found")
}

func conflict(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusConflict, msg, "conflict")
}

func internalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, msg, "internal")
}

// repoError переводит ошибки хранилища в HTTP-ответ.
func repoError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		notFound(w, notFoundMsg)
	case errors.Is(err, repository.ErrConflict):
		conflict(w, "already exists")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed", "forbidden")
	case errors.Is(err, repository.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "temporary failure, retry", "transient")
	default:
		logger.Errorf("repo: %v", err)
		internalError(w, "internal error")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func queryInt64(r *http.Request, key string, defaultVal int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return n
}

// publish маршалит payload и кладёт событие в шину.
func publish(events *bus.Bus, kind bus.Kind, roomID string, seq int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("publish %s: marshal: %v", kind, err)
		return
	}
	events.Publish(bus.Event{Kind: kind, RoomID: roomID, Seq: seq, Data: data})
}

// publishAll маршалит payload и рассылает событие подписчикам всех комнат.
func publishAll(events *bus.Bus, kind bus.Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("publish %s: marshal: %v", kind, err)
		return
	}
	events.PublishAll(bus.Event{Kind: kind, Data: data})
}
