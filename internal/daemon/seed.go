package daemon

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
)

// defaultAdminPassword is used when no override is configured. Change it
// right after the first login.
const defaultAdminPassword = "admin123"

// seed creates the admin account, the fixed homepage card set and the
// about page singleton. A configured admin password always wins, also for
// an existing account.
func seed(cfg *config.Config, db *gorm.DB) {
	var admin models.User

	err := db.Where("username = ?", "admin").First(&admin).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		password := cfg.Admin.Password
		if password == "" {
			password = defaultAdminPassword
		}

		db.Create(&models.User{
			Username: "admin",
			Password: models.HashPassword(password),
			Role:     "admin",
		})
	case err == nil && cfg.Admin.Password != "":
		db.Model(&admin).Update("password", models.HashPassword(cfg.Admin.Password))
	}

	cards := []models.SiteCard{
		{Key: "friend_links", Title: "友情链接", SortOrder: 10, Style: `{"span":12,"accent":"bg-yellow"}`, Enabled: true},
		{Key: "group_chats", Title: "群聊", SortOrder: 20, Style: `{"span":12,"accent":"bg-green"}`, Enabled: true},
		{Key: "announcements", Title: "公告", SortOrder: 30, Style: `{"span":24,"accent":"bg-yellow"}`, Enabled: true},
		{Key: "apps", Title: "应用", SortOrder: 40, Style: `{"span":24,"accent":"bg-yellow"}`, Enabled: true},
	}
	db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&cards)

	var aboutCount int64
	db.Model(&models.AboutPage{}).Where("id = 1").Count(&aboutCount)
	if aboutCount == 0 {
		db.Create(&models.AboutPage{
			ID:         1,
			AuthorName: "ChuEng",
			Version:    "1.0.0",
		})
	}
}
