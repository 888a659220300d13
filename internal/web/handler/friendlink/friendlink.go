// Package friendlink provides CRUD, batch operations and the public listing
// for exchanged site links. Icons live in a side table and are joined into
// every listing.
package friendlink

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/web/handler"
	"github.com/chueng/site-admin/internal/web/middleware/auth"
)

const (
	// Path is the base path for friend link management.
	Path = handler.APIRoot + "/friend-links"
	// PublicPath is the unauthenticated listing for the homepage.
	PublicPath = handler.PublicRoot + "/friend-links"

	// DefaultPageSize for pagination.
	DefaultPageSize = 10

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "links:update"

	entity = "friend_links"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for friend links.
type Service struct {
	cfg    *config.Config
	db     *gorm.DB
	audit  *audit.Recorder
	notify Broadcaster
}

// Handler is the exported instance.
var Handler = Service{}

var validate = validator.New()

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
	app.Post(Path+"/batch", guard, s.Batch)
	app.Get(PublicPath, s.PublicList)
}

// withIcons loads links ordered for display and joins their icons in.
func (s *Service) withIcons(onlyEnabled bool) ([]models.FriendLink, error) {
	tx := s.db.Order("weight DESC, id DESC")
	if onlyEnabled {
		tx = tx.Where("enabled = ?", true)
	}

	var links []models.FriendLink
	if err := tx.Find(&links).Error; err != nil {
		return nil, err
	}

	var icons []models.FriendLinkIcon
	if err := s.db.Find(&icons).Error; err != nil {
		return nil, err
	}

	byLink := make(map[uint64]string, len(icons))
	for _, icon := range icons {
		byLink[icon.FriendLinkID] = icon.IconURL
	}

	for i := range links {
		links[i].IconURL = byLink[links[i].ID]
	}

	return links, nil
}

func (s *Service) broadcastLinks() {
	if s.notify == nil {
		return
	}

	links, err := s.withIcons(false)
	if err != nil {
		log.Error().Err(err).Msg("broadcast friend links failed")
		return
	}

	s.notify.Broadcast(EventUpdate, links)
}

// upsertIcon writes or clears the side-table icon for a link.
func (s *Service) upsertIcon(linkID uint64, iconURL string) error {
	iconURL = strings.TrimSpace(iconURL)

	if iconURL == "" {
		return s.db.Where("friend_link_id = ?", linkID).Delete(&models.FriendLinkIcon{}).Error
	}

	icon := models.FriendLinkIcon{FriendLinkID: linkID, IconURL: iconURL}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "friend_link_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"icon_url", "updated_at"}),
	}).Create(&icon).Error
}

// List shows links with pagination, heaviest weight first.
func (s *Service) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	pageSize := c.QueryInt("pageSize", DefaultPageSize)
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	links, err := s.withIcons(false)
	if err != nil {
		log.Error().Err(err).Msg("query friend links failed")
		return handler.ErrInternal(c, "failed to load friend links")
	}

	total := len(links)
	offset := (page - 1) * pageSize
	if offset > total {
		offset = total
	}

	end := offset + pageSize
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"items":    links[offset:end],
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type linkRequest struct {
	Name    string `json:"name"     validate:"required"`
	URL     string `json:"url"      validate:"required,url"`
	Weight  int    `json:"weight"`
	Enabled *bool  `json:"enabled"`
	IconURL string `json:"icon_url" validate:"omitempty,url"`
}

// Create adds a link.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(linkRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "name and a valid url are required")
	}

	link := models.FriendLink{
		Name:    req.Name,
		URL:     req.URL,
		Weight:  req.Weight,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if err := s.db.Create(&link).Error; err != nil {
		log.Error().Err(err).Msg("create friend link failed")
		return handler.ErrInternal(c, "failed to create friend link")
	}

	if err := s.upsertIcon(link.ID, req.IconURL); err != nil {
		log.Error().Err(err).Uint64("id", link.ID).Msg("save friend link icon failed")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &link.ID,
			map[string]interface{}{"name": req.Name, "url": req.URL})
	}
	s.broadcastLinks()

	return c.JSON(fiber.Map{"id": link.ID})
}

// Update rewrites a link and its icon.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(linkRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "name and a valid url are required")
	}

	enabled := req.Enabled == nil || *req.Enabled
	result := s.db.Model(&models.FriendLink{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":    req.Name,
		"url":     req.URL,
		"weight":  req.Weight,
		"enabled": enabled,
	})
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update friend link failed")
		return handler.ErrInternal(c, "failed to update friend link")
	}

	linkID := uint64(id)
	if err := s.upsertIcon(linkID, req.IconURL); err != nil {
		log.Error().Err(err).Int("id", id).Msg("save friend link icon failed")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &linkID,
			map[string]interface{}{"name": req.Name, "url": req.URL})
	}
	s.broadcastLinks()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes a link and its icon.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	if err := s.db.Where("friend_link_id = ?", id).Delete(&models.FriendLinkIcon{}).Error; err != nil {
		log.Error().Err(err).Int("id", id).Msg("delete friend link icon failed")
	}

	result := s.db.Delete(&models.FriendLink{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete friend link failed")
		return handler.ErrInternal(c, "failed to delete friend link")
	}

	linkID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &linkID, nil)
	}
	s.broadcastLinks()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

type batchRequest struct {
	IDs    []uint64 `json:"ids"`
	Action string   `json:"action"`
}

// Batch applies delete/enable/disable to a set of links.
func (s *Service) Batch(c *fiber.Ctx) error {
	req := new(batchRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.IDs) == 0 {
		return c.JSON(fiber.Map{"changed": 0})
	}

	actor := auth.CurrentUsername(c)

	switch req.Action {
	case "delete":
		result := s.db.Where("id IN ?", req.IDs).Delete(&models.FriendLink{})
		if result.Error != nil {
			log.Error().Err(result.Error).Msg("batch delete friend links failed")
			return handler.ErrInternal(c, "failed to delete friend links")
		}

		if err := s.db.Where("friend_link_id IN ?", req.IDs).
			Delete(&models.FriendLinkIcon{}).Error; err != nil {
			log.Error().Err(err).Msg("batch delete friend link icons failed")
		}

		if s.audit != nil {
			s.audit.Record(actor, "batch_delete", entity, nil, map[string]interface{}{"ids": req.IDs})
		}
		s.broadcastLinks()

		return c.JSON(fiber.Map{"changed": result.RowsAffected})

	case "enable", "disable":
		enabled := req.Action == "enable"
		result := s.db.Model(&models.FriendLink{}).
			Where("id IN ?", req.IDs).
			Update("enabled", enabled)
		if result.Error != nil {
			log.Error().Err(result.Error).Msg("batch toggle friend links failed")
			return handler.ErrInternal(c, "failed to update friend links")
		}

		if s.audit != nil {
			s.audit.Record(actor, "batch_enable", entity, nil,
				map[string]interface{}{"ids": req.IDs, "enabled": enabled})
		}
		s.broadcastLinks()

		return c.JSON(fiber.Map{"changed": result.RowsAffected})

	default:
		return handler.Err(c, fiber.StatusBadRequest, "Unknown action")
	}
}

// PublicList shows enabled links for the homepage.
func (s *Service) PublicList(c *fiber.Ctx) error {
	links, err := s.withIcons(true)
	if err != nil {
		log.Error().Err(err).Msg("query public friend links failed")
		return handler.ErrInternal(c, "failed to load friend links")
	}

	return c.JSON(fiber.Map{"items": links})
}
