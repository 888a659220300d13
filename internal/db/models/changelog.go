package models

import "time"

// Changelog is one released version with its release notes.
type Changelog struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	Version         string    `gorm:"not null"   json:"version"`
	ContentMarkdown string    `json:"content_markdown"`
	ContentHTML     string    `json:"content_html"`
	ReleaseDate     time.Time `json:"release_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
