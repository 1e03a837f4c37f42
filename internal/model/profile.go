package model

import "time"

type Profile struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
