package models

import "time"

// SiteCard is one section card of the public homepage; order and styling are
// operator controlled, the set of cards is seeded and fixed.
type SiteCard struct {
	ID      uint64 `gorm:"primaryKey"      json:"id"`
	Key     string `gorm:"unique;not null" json:"key"`
	Title   string `json:"title"`
	Enabled bool   `gorm:"default:true"    json:"enabled"`
	// SortOrder positions the card, ascending.
	SortOrder int `gorm:"default:0" json:"sort_order"`
	// Style is a JSON blob interpreted by the client (span, accent, ...).
	Style     string    `json:"style"`
	UpdatedAt time.Time `json:"updated_at"`
}
