package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/middleware"
	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/ratelimit"
	"github.com/agentchat/internal/repository"
	"github.com/agentchat/internal/typing"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type MessageHandler struct {
	rooms     *repository.RoomRepository
	msgs      *repository.MessageRepository
	reactions *repository.ReactionRepository
	files     *repository.FileRepository
	typing    *typing.Tracker
	events    *bus.Bus
	limiter   *ratelimit.Limiter

	messagesPerMinute int
}

func NewMessageHandler(
	rooms *repository.RoomRepository,
	msgs *repository.MessageRepository,
	reactions *repository.ReactionRepository,
	files *repository.FileRepository,
	typingTracker *typing.Tracker,
	events *bus.Bus,
	limiter *ratelimit.Limiter,
	messagesPerMinute int,
) *MessageHandler {
	return &MessageHandler{
		rooms:             rooms,
		msgs:              msgs,
		reactions:         reactions,
		files:             files,
		typing:            typingTracker,
		events:            events,
		limiter:           limiter,
		messagesPerMinute: messagesPerMinute,
	}
}

type sendMessageRequest struct {
	Sender     string          `json:"sender"`
	SenderType string          `json:"sender_type"`
	Content    string          `json:"content"`
	ReplyTo    *string         `json:"reply_to"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Send записывает сообщение и рассылает его подписчикам комнаты.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	info, err := h.limiter.Allow(r.Context(), "messages", middleware.ClientIP(r), h.messagesPerMinute, time.Minute)
	if err == nil {
		info.SetHeaders(w.Header(), time.Now())
		if !info.Allowed {
			writeError(w, http.StatusTooManyRequests, "message rate exceeded", "throttled")
			return
		}
	}

	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if room.Archived {
		conflict(w, "room is archived")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}
	senderType, ok := normalizeSenderType(req.SenderType)
	if !ok {
		badRequest(w, "invalid sender_type")
		return
	}
	if !validContent(req.Content) {
		badRequest(w, "content must be 1..10000 characters")
		return
	}
	if req.ReplyTo != nil {
		parent, err := h.msgs.GetByID(r.Context(), *req.ReplyTo)
		if err != nil || parent.Deleted || parent.RoomID != room.ID {
			badRequest(w, "reply_to must reference a message in this room")
			return
		}
	}

	m := &model.Message{
		ID:         uuid.New().String(),
		RoomID:     room.ID,
		Sender:     req.Sender,
		SenderType: senderType,
		Content:    req.Content,
		ReplyToID:  req.ReplyTo,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.msgs.Create(r.Context(), m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// комната ушла в архив между проверкой и вставкой
			conflict(w, "room is archived")
			return
		}
		repoError(w, err, "room not found")
		return
	}

	// отправка сообщения гасит сигнал "печатает"
	h.typing.Stop(r.Context(), room.ID, req.Sender)

	publish(h.events, bus.KindMessage, room.ID, m.Seq, m)
	writeJSON(w, http.StatusCreated, m)
}

// List — история комнаты. before_seq листает назад (новые первыми),
// since_seq отдаёт хвост по возрастанию для догоняющих клиентов.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	p := repository.ListParams{
		SinceSeq:  queryInt64(r, "since_seq", 0),
		BeforeSeq: queryInt64(r, "before_seq", 0),
		Limit:     limit,
	}
	p.Ascending = p.SinceSeq > 0

	msgs, err := h.msgs.List(r.Context(), room.ID, p)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	if err := h.attachExtras(r, msgs); err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// attachExtras дозаполняет реакции пачкой на выборку сообщений.
func (h *MessageHandler) attachExtras(r *http.Request, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
	}
	groups, err := h.reactions.GroupsForMessages(r.Context(), ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Reactions = groups[msgs[i].ID]
	}
	return nil
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	if m.Deleted {
		notFound(w, "message not found")
		return
	}
	if groups, err := h.reactions.Groups(r.Context(), m.ID); err == nil {
		m.Reactions = groups
	}
	if f, err := h.files.GetByMessage(r.Context(), m.ID); err == nil {
		m.File = f
	}
	writeJSON(w, http.StatusOK, m)
}

type editMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Edit меняет текст. Доступен только отправителю, id/seq/created_at не трогаются.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if !validSender(req.Sender) {
		badRequest(w, "invalid sender")
		return
	}
	if !validContent(req.Content) {
		badRequest(w, "content must be 1..10000 characters")
		return
	}

	m, err := h.msgs.Edit(r.Context(), chi.URLParam(r, "messageID"), req.Sender, req.Content)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	publish(h.events, bus.KindMessageEdited, m.RoomID, 0, m)
	writeJSON(w, http.StatusOK, m)
}

// Delete удаляет сообщение. Отправитель удаляет своё, держатель
// админ-ключа комнаты — любое.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgs.GetByID(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		repoError(w, err, "message not found")
		return
	}
	if m.Deleted {
		notFound(w, "message not found")
		return
	}

	room, err := h.rooms.GetByID(r.Context(), m.RoomID)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	force := isRoomAdmin(r, room)
	sender := r.URL.Query().Get("sender")
	if !force && sender == "" {
		badRequest(w, "sender is required")
		return
	}

	deleted, err := h.msgs.Delete(r.Context(), m.ID, sender, force)
	if err != nil {
		repoError(w, err, "message not found")
		return
	}

	publish(h.events, bus.KindMessageDeleted, deleted.RoomID, 0,
		map[string]string{"id": deleted.ID, "room_id": deleted.RoomID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": deleted.ID})
}

// Search ищет по подстроке в текстах сообщений, без учёта регистра.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		badRequest(w, "q is required")
		return
	}
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

	msgs, err := h.msgs.Search(r.Context(), roomID, query, r.URL.Query().Get("sender"), limit)
	if err != nil {
		repoError(w, err, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
