package models

import "time"

// FriendLink is a link exchanged with a befriended site, ordered by weight
// on the public homepage.
type FriendLink struct {
	ID        uint64    `gorm:"primaryKey"     json:"id"`
	Name      string    `gorm:"not null"       json:"name"`
	URL       string    `gorm:"not null"       json:"url"`
	Weight    int       `gorm:"default:0"      json:"weight"`
	Enabled   bool      `gorm:"default:true"   json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// IconURL is joined in from FriendLinkIcon on reads; it is not a column
	// of the friend_links table.
	IconURL string `gorm:"-" json:"icon_url"`
}

// FriendLinkIcon stores an optional icon per friend link in a side table so
// links without icons stay a single row.
type FriendLinkIcon struct {
	FriendLinkID uint64    `gorm:"primaryKey" json:"friend_link_id"`
	IconURL      string    `gorm:"not null"   json:"icon_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
