package models

import "time"

// AboutPage is the singleton about page content; the row with ID 1 is seeded
// on first start and only ever updated.
type AboutPage struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	ContentHTML     string    `json:"content_html"`
	ContentMarkdown string    `json:"content_markdown"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatar    string    `json:"author_avatar"`
	AuthorGithub    string    `json:"author_github"`
	GithubRepo      string    `json:"github_repo"`
	Version         string    `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName overrides GORM's default pluralization.
func (AboutPage) TableName() string {
	return "about_page"
}
