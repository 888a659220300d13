// Package envvar provides CRUD operations for the encrypted runtime
// configuration table. Values are stored as opaque ciphertext tokens and are
// never decrypted here.
package envvar

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/models"
)

const (
	keyQueryPattern = "key = ?"
)

var (
	// ErrEnvVarNotFound is returned when a setting is not found.
	ErrEnvVarNotFound = errors.New("env var not found")
	// ErrKeyEmpty is returned when attempting to read/write a setting with an empty key.
	ErrKeyEmpty = errors.New("env var key cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// CategorizeKey derives a UI category from the key-name prefix convention.
func CategorizeKey(key string) string {
	switch {
	case hasAnyPrefix(key, "DB_", "DATABASE_"):
		return "database"
	case hasAnyPrefix(key, "REDIS_", "CACHE_"):
		return "cache"
	case hasAnyPrefix(key, "VUE_APP_", "API_", "THIRD_", "SERVICE_"):
		return "api"
	default:
		return "other"
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}

	return false
}

// Get retrieves a setting by its key.
func Get(db *gorm.DB, key string) (*models.EnvVar, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}

	var v models.EnvVar
	result := db.Where(keyQueryPattern, key).First(&v)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrEnvVarNotFound
		}
		return nil, result.Error
	}

	return &v, nil
}

// GetAll retrieves all settings ordered by key. Ciphertext only; callers who
// need plaintext must go through the cipher explicitly.
func GetAll(db *gorm.DB) ([]models.EnvVar, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var vars []models.EnvVar
	result := db.Order("key").Find(&vars)
	if result.Error != nil {
		return nil, result.Error
	}

	return vars, nil
}

// Upsert creates or updates the setting for key and returns the previous
// ciphertext (nil if the key is new), so the caller can feed the history
// ledger without a second read. Category resolution: explicit caller value,
// else the stored category from a prior write, else CategorizeKey.
func Upsert(db *gorm.DB, key, ciphertext, category string) (*string, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}

	var existing models.EnvVar
	result := db.Where(keyQueryPattern, key).First(&existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if category == "" {
			category = CategorizeKey(key)
		}

		v := models.EnvVar{
			Key:            key,
			ValueEncrypted: ciphertext,
			Category:       category,
		}
		if err := db.Create(&v).Error; err != nil {
			return nil, err
		}

		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	prev := existing.ValueEncrypted

	existing.ValueEncrypted = ciphertext
	if category != "" {
		existing.Category = category
	} else if existing.Category == "" {
		existing.Category = CategorizeKey(key)
	}

	if err := db.Save(&existing).Error; err != nil {
		return nil, err
	}

	return &prev, nil
}
