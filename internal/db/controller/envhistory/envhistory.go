// Package envhistory manages the append-only write ledger of the encrypted
// runtime configuration. Records are only ever inserted, never updated or
// deleted, so the ledger stays tamper-evident.
package envhistory

import (
	"errors"

	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/models"
)

// DefaultLimit bounds history listings when the caller asks for none.
const DefaultLimit = 50

// MaxLimit is the hard cap on history listings.
const MaxLimit = 100

var (
	// ErrHistoryNotFound is returned when a history entry is not found.
	ErrHistoryNotFound = errors.New("history entry not found")
	// ErrKeyEmpty is returned when appending a record with an empty key.
	ErrKeyEmpty = errors.New("history key cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// clampLimit normalizes a caller-supplied limit into [1, MaxLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}

	return limit
}

// Append records one write of key. oldCiphertext is nil on the first write.
// Returns the ID of the new record.
func Append(db *gorm.DB, key string, oldCiphertext *string, newCiphertext string) (uint64, error) {
	if db == nil {
		return 0, ErrDBNil
	}
	if key == "" {
		return 0, ErrKeyEmpty
	}

	entry := models.EnvHistory{
		Key:               key,
		OldValueEncrypted: oldCiphertext,
		NewValueEncrypted: newCiphertext,
	}
	if err := db.Create(&entry).Error; err != nil {
		return 0, err
	}

	return entry.ID, nil
}

// Get retrieves a single history entry by ID.
func Get(db *gorm.DB, id uint64) (*models.EnvHistory, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var entry models.EnvHistory
	result := db.First(&entry, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, result.Error
	}

	return &entry, nil
}

// ListFor returns the newest entries for key, most recent first.
func ListFor(db *gorm.DB, key string, limit int) ([]models.EnvHistory, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}

	var entries []models.EnvHistory
	result := db.Where("key = ?", key).
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}

// ListAll returns the newest entries across all keys, most recent first.
func ListAll(db *gorm.DB, limit int) ([]models.EnvHistory, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var entries []models.EnvHistory
	result := db.Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}
