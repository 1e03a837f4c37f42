package model

import "time"

type Room struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	CreatedBy        string     `json:"created_by,omitempty"`
	Archived         bool       `json:"archived"`
	RetentionSeconds *int64     `json:"retention_seconds,omitempty"`
	LastSeq          int64      `json:"last_seq"`
	MessageCount     int64      `json:"message_count"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`

	// Хэш админ-ключа комнаты. Наружу не сериализуется,
	// сам ключ виден один раз в ответе на создание.
	AdminKeyHash string `json:"-"`
}

// RoomWithAdminKey — ответ на создание комнаты: единственное место,
// где админ-ключ отдаётся в открытом виде.
type RoomWithAdminKey struct {
	Room
	AdminKey string `json:"admin_key"`
}

// RoomListEntry — комната в листинге с данными конкретного читателя.
type RoomListEntry struct {
	Room
	Bookmarked  bool  `json:"bookmarked"`
	UnreadCount int64 `json:"unread_count"`
	LastReadSeq int64 `json:"last_read_seq"`
}

// Participant — все, кто когда-либо писал в комнату, со статистикой активности.
type Participant struct {
	RoomID       string    `json:"room_id"`
	Name         string    `json:"name"`
	SenderType   string    `json:"sender_type"`
	MessageCount int64     `json:"message_count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Profile      *Profile  `json:"profile,omitempty"`
}
