// Package groupchat provides CRUD and the public listing for joinable chat
// groups.
package groupchat

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
	// Path is the base path for group chat management.
	Path = handler.APIRoot + "/group-chats"
	// PublicPath is the unauthenticated listing.
	PublicPath = handler.PublicRoot + "/group-chats"

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "groups:update"

	entity = "group_chats"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for group chats.
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

	var chats []models.GroupChat
	err := s.db.Where("enabled = ?", true).Order("id DESC").Find(&chats).Error
	if err != nil {
		log.Error().Err(err).Msg("broadcast group chats failed")
		return
	}

	s.notify.Broadcast(EventUpdate, chats)
}

// List shows all group chats, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	var chats []models.GroupChat
	if err := s.db.Order("id DESC").Find(&chats).Error; err != nil {
		log.Error().Err(err).Msg("query group chats failed")
		return handler.ErrInternal(c, "failed to load group chats")
	}

	return c.JSON(fiber.Map{"items": chats})
}

type chatRequest struct {
	Name      *string `json:"name"`
	Link      *string `json:"link"`
	AvatarURL *string `json:"avatar_url"`
	Enabled   *bool   `json:"enabled"`
}

// Create adds a group chat.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(chatRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == nil || *req.Name == "" {
		return handler.Err(c, fiber.StatusBadRequest, "name required")
	}

	chat := models.GroupChat{
		Name:    *req.Name,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if req.Link != nil {
		chat.Link = *req.Link
	}
	if req.AvatarURL != nil {
		chat.AvatarURL = *req.AvatarURL
	}

	if err := s.db.Create(&chat).Error; err != nil {
		log.Error().Err(err).Msg("create group chat failed")
		return handler.ErrInternal(c, "failed to create group chat")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &chat.ID,
			map[string]string{"name": chat.Name})
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"id": chat.ID})
}

// Update patches the provided fields of a group chat.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(chatRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Link != nil {
		updates["link"] = *req.Link
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}

	if len(updates) == 0 {
		return handler.Err(c, fiber.StatusBadRequest, "No fields to update")
	}

	result := s.db.Model(&models.GroupChat{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update group chat failed")
		return handler.ErrInternal(c, "failed to update group chat")
	}

	chatID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &chatID, updates)
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes a group chat.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.GroupChat{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete group chat failed")
		return handler.ErrInternal(c, "failed to delete group chat")
	}

	chatID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &chatID, nil)
	}
	s.broadcastEnabled()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

// PublicList shows enabled group chats.
func (s *Service) PublicList(c *fiber.Ctx) error {
	var chats []models.GroupChat
	err := s.db.Where("enabled = ?", true).Order("id DESC").Find(&chats).Error
	if err != nil {
		log.Error().Err(err).Msg("query public group chats failed")
		return handler.ErrInternal(c, "failed to load group chats")
	}

	return c.JSON(fiber.Map{"items": chats})
}
