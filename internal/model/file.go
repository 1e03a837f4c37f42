package model

import "time"

type FileInfo struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	MessageID   *string   `json:"message_id,omitempty"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
