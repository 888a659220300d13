// Package about serves and updates the singleton about page.
package about

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/web/handler"
	"github.com/chueng/site-admin/internal/web/middleware/auth"
)

const (
	// Path is the base path for the about page.
	Path = handler.APIRoot + "/about"

	// singletonID is the fixed row id of the about page.
	singletonID = 1

	entity = "about_page"
)

// Service provides the about page endpoints.
type Service struct {
	cfg   *config.Config
	db    *gorm.DB
	audit *audit.Recorder
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes. The read is public, the update is guarded.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, recorder *audit.Recorder, guard fiber.Handler) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.audit = recorder

	app.Get(Path, s.Get)
	app.Put(Path, guard, s.Update)
}

// Get returns the about page; an unseeded page reads as an empty object.
func (s *Service) Get(c *fiber.Ctx) error {
	var page models.AboutPage
	err := s.db.First(&page, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{})
	}
	if err != nil {
		log.Error().Err(err).Msg("query about page failed")
		return handler.ErrInternal(c, "failed to load about page")
	}

	return c.JSON(page)
}

type aboutRequest struct {
	ContentHTML     string `json:"content_html"`
	ContentMarkdown string `json:"content_markdown"`
	AuthorName      string `json:"author_name"`
	AuthorAvatar    string `json:"author_avatar"`
	AuthorGithub    string `json:"author_github"`
	GithubRepo      string `json:"github_repo"`
	Version         string `json:"version"`
}

// Update rewrites the singleton about page.
func (s *Service) Update(c *fiber.Ctx) error {
	req := new(aboutRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := s.db.Model(&models.AboutPage{}).Where("id = ?", singletonID).
		Updates(map[string]interface{}{
			"content_html":     req.ContentHTML,
			"content_markdown": req.ContentMarkdown,
			"author_name":      req.AuthorName,
			"author_avatar":    req.AuthorAvatar,
			"author_github":    req.AuthorGithub,
			"github_repo":      req.GithubRepo,
			"version":          req.Version,
		})
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("update about page failed")
		return handler.ErrInternal(c, "failed to update about page")
	}

	if s.audit != nil {
		id := uint64(singletonID)
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &id, nil)
	}

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}
