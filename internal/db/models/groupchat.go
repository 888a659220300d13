package models

import "time"

// GroupChat is a joinable chat group advertised on the public site.
type GroupChat struct {
	ID        uint64    `gorm:"primaryKey"   json:"id"`
	Name      string    `gorm:"not null"     json:"name"`
	Link      string    `json:"link"`
	AvatarURL string    `json:"avatar_url"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
