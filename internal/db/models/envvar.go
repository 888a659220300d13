// Package models contains database model definitions.
package models

import "time"

// EnvVar represents the current encrypted value of a runtime configuration
// key. It is the single source of truth for "current"; the plaintext mirror
// file is derived from it.
type EnvVar struct {
	ID uint64 `gorm:"primaryKey"        json:"id"`
	// Key is the configuration key, unique across the table.
	Key string `gorm:"unique;not null"  json:"key"`
	// ValueEncrypted is the AEAD token, base64 text safe for a text column.
	ValueEncrypted string `gorm:"not null"         json:"value_encrypted"`
	// Category groups keys in the UI (database, cache, api, other).
	Category  string    `json:"category"`
	UpdatedAt time.Time `json:"updated_at"`
}
