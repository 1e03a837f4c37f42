package model

import "time"

// Webhook — подписка комнаты на исходящие уведомления.
// Секрет наружу не отдаётся, он показывается один раз при создании.
type Webhook struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}
