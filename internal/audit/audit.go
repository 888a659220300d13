// Package audit records mutating operations to the operation log and pushes
// them to connected dashboard clients. Recording is best-effort: a failed
// audit write is logged and swallowed so it never fails the operation that
// triggered it.
package audit

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/models"
)

// EventLogsNew is the push-channel event type for new audit entries.
const EventLogsNew = "logs:new"

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Recorder persists audit entries and announces them on the push channel.
type Recorder struct {
	db     *gorm.DB
	notify Broadcaster
}

// NewRecorder creates a Recorder. notify may be nil when no push channel is
// wired (tests, CLI tooling).
func NewRecorder(db *gorm.DB, notify Broadcaster) *Recorder {
	return &Recorder{db: db, notify: notify}
}

// Record writes one audit entry. details is serialized to JSON as the entry
// payload; a nil details writes an empty payload.
func (r *Recorder) Record(actor, action, entity string, entityID *uint64, details interface{}) {
	entry := models.OperationLog{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	}

	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("failed to encode audit payload")
		} else {
			entry.Payload = string(payload)
		}
	}

	if r.db == nil {
		log.Error().Str("action", action).Msg("audit recorder has no database")
		return
	}

	if err := r.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to write audit entry")
		return
	}

	if r.notify != nil {
		r.notify.Broadcast(EventLogsNew, entry)
	}
}

// List returns the newest audit entries, most recent first.
func (r *Recorder) List(limit int) ([]models.OperationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.OperationLog
	err := r.db.Order("id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Purge deletes audit entries older than the retention window and returns
// the number removed.
func (r *Recorder) Purge(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := r.db.Where("created_at < ?", cutoff).Delete(&models.OperationLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
