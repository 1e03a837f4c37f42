package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentchat/internal/blob"
	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/middleware"
	"github.com/agentchat/internal/model"
	"github.com/agentchat/internal/ratelimit"
	"github.com/agentchat/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные — разрешены.
var blockedExt = map[string]bool{
	".exe": true, ".sh": true, ".bat": true, ".cmd": true,
	".php": true, ".com": true, ".scr": true,
}

type FileHandler struct {
	rooms   *repository.RoomRepository
	msgs    *repository.MessageRepository
	files   *repository.FileRepository
	blobs   *blob.Store
	events  *bus.Bus
	limiter *ratelimit.Limiter

	maxBytes         int64
	uploadsPerMinute int
}

func NewFileHandler(
	rooms *repository.RoomRepository,
	msgs *repository.MessageRepository,
	files *repository.FileRepository,
	blobs *blob.Store,
	events *bus.Bus,
	limiter *ratelimit.Limiter,
	maxBytes int64,
	uploadsPerMinute int,
) *FileHandler {
	return &FileHandler{
		rooms:            rooms,
		msgs:             msgs,
		files:            files,
		blobs:            blobs,
		events:           events,
		limiter:          limiter,
		maxBytes:         maxBytes,
		uploadsPerMinute: uploadsPerMinute,
	}
}

// uploadRequest — JSON-тело загрузки: содержимое файла в base64-поле data.
type uploadRequest struct {
	Sender      string `json:"sender"`
	SenderType  string `json:"sender_type"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Data        string `json:"data"`
}

var errUploadTooLarge = errors.New("file too large")

// decodeUploadJSON разбирает JSON-тело загрузки и декодирует данные из base64.
// Лимит размера применяется к уже декодированным байтам.
func decodeUploadJSON(body io.Reader, maxBytes int64) (uploadRequest, []byte, error) {
	var req uploadRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, nil, errors.New("invalid json body")
	}
	if req.Data == "" {
		return req, nil, errors.New("data is required")
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return req, nil, errors.New("invalid base64 data")
	}
	if int64(len(data)) > maxBytes {
		return req, nil, errUploadTooLarge
	}
	return req, data, nil
}

// Upload принимает JSON с base64-полем data либо multipart/form-data с полем
// file. Содержимое уходит в blob-хранилище, метаданные в БД, в комнате
// появляется сообщение с вложением.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	info, err := h.limiter.Allow(r.Context(), "uploads", middleware.ClientIP(r), h.uploadsPerMinute, time.Minute)
	if err == nil {
		info.SetHeaders(w.Header(), time.Now())
		if !info.Allowed {
			writeError(w, http.StatusTooManyRequests, "upload rate exceeded", "throttled")
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

	// base64 раздувает тело примерно на треть, запас учитываем в лимите ридера.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*4/3+64*1024)

	var (
		sender, rawType, filename string
		contentType, content      string
		payload                   io.Reader
		closePayload              func() error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "payload_too_large")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file is required")
			return
		}
		closePayload = file.Close
		payload = file
		sender = r.FormValue("sender")
		rawType = r.FormValue("sender_type")
		filename = header.Filename
		contentType = header.Header.Get("Content-Type")
		content = r.FormValue("content")
	} else {
		req, data, err := decodeUploadJSON(r.Body, h.maxBytes)
		if errors.Is(err, errUploadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "payload_too_large")
			return
		}
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		payload = bytes.NewReader(data)
		sender = req.Sender
		rawType = req.SenderType
		filename = req.Filename
		contentType = req.ContentType
		content = req.Content
	}
	if closePayload != nil {
		defer closePayload()
	}

	if !validSender(sender) {
		badRequest(w, "invalid sender")
		return
	}
	senderType, ok := normalizeSenderType(rawType)
	if !ok {
		badRequest(w, "invalid sender_type")
		return
	}

	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем.
	filename = strings.ReplaceAll(filename, "+", " ")
	if !validFilename(filename) {
		badRequest(w, "invalid filename")
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if blockedExt[ext] {
		badRequest(w, "file type not allowed")
		return
	}

	sha, size, err := h.blobs.Put(payload, h.maxBytes)
	if errors.Is(err, blob.ErrTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large", "payload_too_large")
		return
	}
	if err != nil {
		logger.Errorf("file upload: %v", err)
		internalError(w, "failed to store file")
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := time.Now().UTC()
	if content == "" {
		content = fmt.Sprintf("uploaded %s", filename)
	}
	if !validContent(content) {
		badRequest(w, "content must be 1..10000 characters")
		return
	}
	m := &model.Message{
		ID:         uuid.New().String(),
		RoomID:     room.ID,
		Sender:     sender,
		SenderType: senderType,
		Content:    content,
		CreatedAt:  now,
	}
	if err := h.msgs.Create(r.Context(), m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			conflict(w, "room is archived")
			return
		}
		repoError(w, err, "room not found")
		return
	}

	f := &model.FileInfo{
		ID:          uuid.New().String(),
		RoomID:      room.ID,
		MessageID:   &m.ID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		SHA256:      sha,
		UploadedBy:  sender,
		CreatedAt:   now,
	}
	if err := h.files.Create(r.Context(), f); err != nil {
		repoError(w, err, "room not found")
		return
	}
	m.File = f

	publish(h.events, bus.KindMessage, room.ID, m.Seq, m)
	publish(h.events, bus.KindFileUploaded, room.ID, 0, f)
	writeJSON(w, http.StatusCreated, f)
}

// Download отдаёт содержимое файла.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.GetByID(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		repoError(w, err, "file not found")
		return
	}
	blobFile, err := h.blobs.Open(f.SHA256)
	if err != nil {
		logger.Errorf("file download %s: blob missing: %v", f.ID, err)
		notFound(w, "file content not found")
		return
	}
	defer blobFile.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", f.SizeBytes))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	w.Header().Set("ETag", `"`+f.SHA256+`"`)
	if r.Header.Get("If-None-Match") == `"`+f.SHA256+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if _, err := io.Copy(w, blobFile); err != nil {
		logger.Errorf("file download %s: %v", f.ID, err)
	}
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	room, err := resolveRoom(r.Context(), h.rooms, chi.URLParam(r, "room"))
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	files, err := h.files.ListByRoom(r.Context(), room.ID, limit)
	if err != nil {
		repoError(w, err, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// Delete доступен загрузившему файл либо держателю админ-ключа комнаты.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.GetByID(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		repoError(w, err, "file not found")
		return
	}
	if sender := r.URL.Query().Get("sender"); sender != f.UploadedBy {
		room, err := h.rooms.GetByID(r.Context(), f.RoomID)
		if err != nil {
			repoError(w, err, "room not found")
			return
		}
		if !isRoomAdmin(r, room) {
			writeError(w, http.StatusForbidden, "not allowed", "forbidden")
			return
		}
	}
	sha, orphaned, err := h.files.Delete(r.Context(), f.ID)
	if err != nil {
		repoError(w, err, "file not found")
		return
	}
	if orphaned {
		if err := h.blobs.Remove(sha); err != nil {
			logger.Errorf("file delete %s: remove blob: %v", f.ID, err)
		}
	}
	publish(h.events, bus.KindFileDeleted, f.RoomID, 0, map[string]string{"id": f.ID, "room_id": f.RoomID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": f.ID})
}
