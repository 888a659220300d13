package models

import "time"

// Announcement statuses.
const (
	AnnouncementStatusDraft     = "draft"
	AnnouncementStatusPublished = "published"
	AnnouncementStatusOffline   = "offline"
)

// Announcement is a site announcement with a draft/published/offline
// lifecycle. A draft with ScheduledAt in the past is promoted to published
// by the daemon's publish ticker.
type Announcement struct {
	ID              uint64     `gorm:"primaryKey"            json:"id"`
	Title           string     `gorm:"not null"              json:"title"`
	ContentHTML     string     `json:"content_html"`
	ContentMarkdown string     `json:"content_markdown"`
	Status          string     `gorm:"size:20;default:draft" json:"status"`
	CategoryID      *uint64    `json:"category_id"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	PublishedAt     *time.Time `json:"published_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// CategoryName is joined in on public reads.
	CategoryName string `gorm:"-" json:"category_name,omitempty"`
}

// AnnouncementCategory groups announcements; categories may nest one level
// via ParentID.
type AnnouncementCategory struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null"   json:"name"`
	ParentID  *uint64   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}
