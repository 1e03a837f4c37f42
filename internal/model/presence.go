package model

import "time"

// PresenceEntry — активное подключение пользователя к стриму комнаты.
// Connections считает одновременные SSE-подключения одного имени.
type PresenceEntry struct {
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	SenderType  string    `json:"sender_type"`
	Connections int       `json:"connections"`
	Since       time.Time `json:"since"`
}

type TypingEntry struct {
	RoomID    string    `json:"room_id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// ReadCursor — позиция чтения пары (комната, имя). Двигается только вперёд.
type ReadCursor struct {
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	LastReadSeq int64     `json:"last_read_seq"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnreadEntry — счётчик непрочитанного в одной комнате для сводки по имени.
type UnreadEntry struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	LastReadSeq int64  `json:"last_read_seq"`
	UnreadCount int64  `json:"unread_count"`
}
