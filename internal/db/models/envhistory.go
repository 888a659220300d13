package models

import "time"

// EnvHistory is one append-only record of a write to an EnvVar. Entries are
// immutable once written; rollback reads an entry and produces a new write,
// it never mutates history.
type EnvHistory struct {
	ID  uint64 `gorm:"primaryKey"     json:"id"`
	Key string `gorm:"index;not null" json:"key"`
	// OldValueEncrypted is nil on the first write of a key.
	OldValueEncrypted *string   `json:"old_value_encrypted"`
	NewValueEncrypted string    `gorm:"not null" json:"new_value_encrypted"`
	CreatedAt         time.Time `json:"updated_at"`
}

// TableName overrides GORM's default pluralization.
func (EnvHistory) TableName() string {
	return "env_history"
}
