// Package appstore provides CRUD and the public listing for showcased
// applications.
package appstore

import (
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
	// Path is the base path for app management.
	Path = handler.APIRoot + "/apps"
	// PublicPath is the unauthenticated listing.
	PublicPath = handler.PublicRoot + "/apps"

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "apps:update"

	entity = "apps"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for apps.
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
	app.Get(PublicPath, s.PublicList)
}

func (s *Service) broadcastEnabled() {
	if s.notify == nil {
		return
	}

	var apps []models.App
	err := s.db.Where("enabled = ?", true).Order("id DESC").Find(&apps).Error
	if err != nil {
		log.Error().Err(err).Msg("broadcast apps failed")
		return
	}

	s.notify.Broadcast(EventUpdate, apps)
}

// List shows all apps, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	var apps []models.App
	if err := s.db.Order("id DESC").Find(&apps).Error; err != nil {
		log.Error().Err(err).Msg("query apps failed")
		return handler.ErrInternal(c, "failed to load apps")
	}

	return c.JSON(fiber.Map{"items": apps})
}

type appRequest struct {
	Name        *string `json:"name"`
	Provider    *string `json:"provider"`
	BgURL       *string `json:"bg_url"`
	IconURL     *string `json:"icon_url"`
	DownloadURL *string `json:"download_url"`
	Enabled     *bool   `json:"enabled"`
}

// Create adds an app.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(appRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == nil || *req.Name == "" {
		return handler.Err(c, fiber.StatusBadRequest, "name required")
	}

	app := models.App{
		Name:    *req.Name,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if req.Provider != nil {
		app.Provider = *req.Provider
	}
	if req.BgURL != nil {
		app.BgURL = *req.BgURL
	}
	if req.IconURL != nil {
		app.IconURL = *req.IconURL
	}
	if req.DownloadURL != nil {
		app.DownloadURL = *req.DownloadURL
	}

	if err := s.db.Create(&app).Error; err != nil {
		log.Error().Err(err).Msg("create app failed")
		return handler.ErrInternal(c, "failed to create app")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &app.ID,
			map[string]string{"name": app.Name})
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"id": app.ID})
}

// Update patches the provided fields of an app.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(appRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Provider != nil {
		updates["provider"] = *req.Provider
	}
	if req.BgURL != nil {
		updates["bg_url"] = *req.BgURL
	}
	if req.IconURL != nil {
		updates["icon_url"] = *req.IconURL
	}
	if req.DownloadURL != nil {
		updates["download_url"] = *req.DownloadURL
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}

	if len(updates) == 0 {
		return handler.Err(c, fiber.StatusBadRequest, "No fields to update")
	}

	result := s.db.Model(&models.App{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update app failed")
		return handler.ErrInternal(c, "failed to update app")
	}

	appID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &appID, updates)
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes an app.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.App{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete app failed")
		return handler.ErrInternal(c, "failed to delete app")
	}

	appID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &appID, nil)
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

// PublicList shows enabled apps.
func (s *Service) PublicList(c *fiber.Ctx) error {
	var apps []models.App
	err := s.db.Where("enabled = ?", true).Order("id DESC").Find(&apps).Error
	if err != nil {
		log.Error().Err(err).Msg("query public apps failed")
		return handler.ErrInternal(c, "failed to load apps")
	}

	return c.JSON(fiber.Map{"items": apps})
}
