package models

import "time"

// Visitor is one tracked page view: normalized client IP, resolved location
// and a parsed device string.
type Visitor struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	IP       string `gorm:"size:64"    json:"ip"`
	Location string `json:"location"`
	Device   string `json:"device"`
	// Timestamp is the visit time.
	Timestamp time.Time `gorm:"autoCreateTime;column:timestamp" json:"timestamp"`
}
