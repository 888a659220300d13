// Package changelog provides CRUD and the public listing for release notes.
package changelog

import (
	"time"

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
	// Path is the base path for changelog management.
	Path = handler.APIRoot + "/changelogs"
	// PublicPath is the unauthenticated listing.
	PublicPath = handler.PublicRoot + "/changelogs"

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "changelogs:update"

	entity = "changelogs"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for changelogs.
type Service struct {
	cfg    *config.Config
	db     *gorm.DB
	audit  *audit.Recorder
	notify Broadcaster
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, recorder *audit.Recorder, notify Broadcaster, guard fiber.Handler) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.audit = recorder
	s.notify = notify

	app.Get(Path, guard, s.List)
	app.Post(Path, guard, s.Create)
	app.Put(Path+"/:id", guard, s.Update)
	app.Delete(Path+"/:id", guard, s.Delete)
	app.Get(PublicPath, s.List)
}

func (s *Service) ordered() ([]models.Changelog, error) {
	var logs []models.Changelog
	err := s.db.Order("release_date DESC, created_at DESC").Find(&logs).Error

	return logs, err
}

func (s *Service) broadcastAll() {
	if s.notify == nil {
		return
	}

	logs, err := s.ordered()
	if err != nil {
		log.Error().Err(err).Msg("broadcast changelogs failed")
		return
	}

	s.notify.Broadcast(EventUpdate, logs)
}

// List shows all changelogs, latest release first. Also serves the public
// listing, which is identical.
func (s *Service) List(c *fiber.Ctx) error {
	logs, err := s.ordered()
	if err != nil {
		log.Error().Err(err).Msg("query changelogs failed")
		return handler.ErrInternal(c, "failed to load changelogs")
	}

	return c.JSON(fiber.Map{"items": logs})
}

type changelogRequest struct {
	Version         string     `json:"version"`
	ContentHTML     string     `json:"content_html"`
	ContentMarkdown string     `json:"content_markdown"`
	ReleaseDate     *time.Time `json:"release_date"`
}

// Create adds a changelog; release date defaults to now.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(changelogRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Version == "" {
		return handler.Err(c, fiber.StatusBadRequest, "version required")
	}

	releaseDate := time.Now()
	if req.ReleaseDate != nil {
		releaseDate = *req.ReleaseDate
	}

	entry := models.Changelog{
		Version:         req.Version,
		ContentHTML:     req.ContentHTML,
		ContentMarkdown: req.ContentMarkdown,
		ReleaseDate:     releaseDate,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Msg("create changelog failed")
		return handler.ErrInternal(c, "failed to create changelog")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &entry.ID,
			map[string]string{"version": req.Version})
	}
	s.broadcastAll()

	return c.JSON(fiber.Map{"id": entry.ID})
}

// Update rewrites a changelog.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(changelogRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{
		"version":          req.Version,
		"content_html":     req.ContentHTML,
		"content_markdown": req.ContentMarkdown,
	}
	if req.ReleaseDate != nil {
		updates["release_date"] = *req.ReleaseDate
	}

	result := s.db.Model(&models.Changelog{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update changelog failed")
		return handler.ErrInternal(c, "failed to update changelog")
	}

	entryID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &entryID,
			map[string]string{"version": req.Version})
	}
	s.broadcastAll()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes a changelog.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.Changelog{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete changelog failed")
		return handler.ErrInternal(c, "failed to delete changelog")
	}

	entryID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &entryID, nil)
	}
	s.broadcastAll()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}
