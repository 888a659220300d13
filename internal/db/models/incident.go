package models

import "time"

// Incident statuses and types.
const (
	IncidentStatusResolved  = "resolved"
	IncidentTypeMaintenance = "maintenance"
	IncidentTypeIncident    = "incident"
)

// Incident is a service incident or planned maintenance window shown on the
// public status banner. Start and end times are unix seconds as the client
// works with epoch values.
type Incident struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null"   json:"title"`
	Content   string    `json:"content"`
	Status    string    `gorm:"size:50"    json:"status"`
	Type      string    `gorm:"size:50"    json:"type"`
	StartTime int64     `json:"start_time"`
	EndTime   int64     `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
