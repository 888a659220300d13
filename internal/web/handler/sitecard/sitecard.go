// Package sitecard manages the fixed set of homepage section cards: order,
// visibility and styling. Cards are seeded at startup and only ever updated.
package sitecard

import (
	"encoding/json"

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
	// Path is the base path for site card management.
	Path = handler.APIRoot + "/site-cards"
	// PublicPath is the unauthenticated listing.
	PublicPath = handler.PublicRoot + "/site-cards"

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "site_cards:update"

	entity = "site_cards"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides update operations for site cards.
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
	app.Put(Path+"/:id", guard, s.Update)
	app.Get(PublicPath, s.PublicList)
}

func (s *Service) broadcastAll() {
	if s.notify == nil {
		return
	}

	var cards []models.SiteCard
	if err := s.db.Order("sort_order ASC").Find(&cards).Error; err != nil {
		log.Error().Err(err).Msg("broadcast site cards failed")
		return
	}

	s.notify.Broadcast(EventUpdate, cards)
}

// List shows all cards in display order.
func (s *Service) List(c *fiber.Ctx) error {
	var cards []models.SiteCard
	if err := s.db.Order("sort_order ASC").Find(&cards).Error; err != nil {
		log.Error().Err(err).Msg("query site cards failed")
		return handler.ErrInternal(c, "failed to load site cards")
	}

	return c.JSON(fiber.Map{"items": cards})
}

type cardRequest struct {
	Title     string `json:"title"`
	Enabled   bool   `json:"enabled"`
	SortOrder int    `json:"sort_order"`
	// Style accepts either a JSON object or a pre-serialized string.
	Style json.RawMessage `json:"style"`
}

// Update rewrites a card's presentation settings.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(cardRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	style := string(req.Style)
	// A JSON string value is stored unwrapped.
	var unquoted string
	if json.Unmarshal(req.Style, &unquoted) == nil {
		style = unquoted
	}

	result := s.db.Model(&models.SiteCard{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":      req.Title,
		"enabled":    req.Enabled,
		"sort_order": req.SortOrder,
		"style":      style,
	})
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update site card failed")
		return handler.ErrInternal(c, "failed to update site card")
	}

	cardID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &cardID,
			map[string]interface{}{"title": req.Title, "enabled": req.Enabled, "sort_order": req.SortOrder})
	}
	s.broadcastAll()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// PublicList shows enabled cards in display order.
func (s *Service) PublicList(c *fiber.Ctx) error {
	var cards []models.SiteCard
	err := s.db.Where("enabled = ?", true).Order("sort_order ASC").Find(&cards).Error
	if err != nil {
		log.Error().Err(err).Msg("query public site cards failed")
		return handler.ErrInternal(c, "failed to load site cards")
	}

	return c.JSON(fiber.Map{"items": cards})
}
