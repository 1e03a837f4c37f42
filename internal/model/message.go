package model

import (
	"encoding/json"
	"time"
)

// Типы отправителей. Пустое значение нормализуется в unknown.
const (
	SenderAgent   = "agent"
	SenderHuman   = "human"
	SenderUnknown = "unknown"
)

type Message struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	Seq        int64           `json:"seq"`
	Sender     string          `json:"sender"`
	SenderType string          `json:"sender_type"`
	Content    string          `json:"content"`
	ReplyToID  *string         `json:"reply_to,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	EditedAt   *time.Time      `json:"edited_at,omitempty"`
	Deleted    bool            `json:"deleted,omitempty"`
	Pinned     bool            `json:"pinned"`
	CreatedAt  time.Time       `json:"created_at"`
	File       *FileInfo       `json:"file,omitempty"`
	Reactions  []ReactionGroup `json:"reactions,omitempty"`
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup — реакции на сообщение, сгруппированные по эмодзи.
type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	Senders []string `json:"senders"`
}

type PinnedMessage struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	PinnedBy  string    `json:"pinned_by"`
	PinnedAt  time.Time `json:"pinned_at"`
	Message   *Message  `json:"message,omitempty"`
}

// ThreadNode — сообщение с ответами, дерево собирается в ширину от корня.
type ThreadNode struct {
	Message Message      `json:"message"`
	Depth   int          `json:"depth"`
	Replies []ThreadNode `json:"replies"`
}

// Bookmark закрепляет комнату в списке для конкретного имени.
type Bookmark struct {
	Name      string    `json:"name"`
	RoomID    string    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
	Room      *Room     `json:"room,omitempty"`
}
