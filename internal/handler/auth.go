package handler

import (
	"net/http"
	"strings"

	"github.com/agentchat/internal/adminkey"
	"github.com/agentchat/internal/model"
)

// bearerKey достаёт предъявленный админ-ключ из Authorization: Bearer
// или из X-Admin-Key (удобно для curl).
func bearerKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Key"))
}

// requireRoomAdmin пропускает запрос только с админ-ключом этой комнаты.
// Без ключа 401, с чужим или битым ключом 403. Пишет ответ сама,
// вызывающий при false просто выходит.
func requireRoomAdmin(w http.ResponseWriter, r *http.Request, room *model.Room) bool {
	key := bearerKey(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "admin key required", "unauthorized")
		return false
	}
	if !adminkey.Verify(key, room.AdminKeyHash) {
		writeError(w, http.StatusForbidden, "wrong admin key", "forbidden")
		return false
	}
	return true
}

// isRoomAdmin — неотвечающий вариант для операций, где ключ лишь
// расширяет права (удаление чужого сообщения).
func isRoomAdmin(r *http.Request, room *model.Room) bool {
	key := bearerKey(r)
	return key != "" && adminkey.Verify(key, room.AdminKeyHash)
}
