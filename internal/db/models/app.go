package models

import "time"

// App is a downloadable application showcased on the public site.
type App struct {
	ID          uint64    `gorm:"primaryKey"   json:"id"`
	Name        string    `gorm:"not null"     json:"name"`
	Provider    string    `json:"provider"`
	BgURL       string    `gorm:"column:bg_url" json:"bg_url"`
	IconURL     string    `json:"icon_url"`
	DownloadURL string    `json:"download_url"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
