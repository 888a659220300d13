// Package announcement provides CRUD for announcements and their categories,
// the draft/published/offline lifecycle, and the public published feed.
package announcement

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
	// Path is the base path for announcement management.
	Path = handler.APIRoot + "/announcements"
	// CategoryPath is the base path for category management.
	CategoryPath = handler.APIRoot + "/announcement-categories"
	// PublicPath is the unauthenticated published feed.
	PublicPath = handler.PublicRoot + "/announcements"

	// DefaultPageSize for pagination.
	DefaultPageSize = 10
	// DefaultPublicLimit caps the public feed.
	DefaultPublicLimit = 20

	// EventUpdate is the push-channel event type after lifecycle changes.
	EventUpdate = "announcements:update"

	entity = "announcements"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for announcements.
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
	app.Post(Path+"/:id/publish", guard, s.Publish)
	app.Post(Path+"/:id/offline", guard, s.Offline)

	app.Get(CategoryPath, guard, s.ListCategories)
	app.Post(CategoryPath, guard, s.CreateCategory)
	app.Put(CategoryPath+"/:id", guard, s.UpdateCategory)
	app.Delete(CategoryPath+"/:id", guard, s.DeleteCategory)

	app.Get(PublicPath, s.PublicList)
}

// publishedFeed returns published announcements with category names joined,
// most recently published first.
func (s *Service) publishedFeed(limit int) ([]models.Announcement, error) {
	tx := s.db.Where("status = ?", models.AnnouncementStatusPublished).
		Order("published_at DESC, updated_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var items []models.Announcement
	if err := tx.Find(&items).Error; err != nil {
		return nil, err
	}

	var categories []models.AnnouncementCategory
	if err := s.db.Find(&categories).Error; err != nil {
		return nil, err
	}

	names := make(map[uint64]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	for i := range items {
		if items[i].CategoryID != nil {
			items[i].CategoryName = names[*items[i].CategoryID]
		}
	}

	return items, nil
}

func (s *Service) broadcastPublished() {
	if s.notify == nil {
		return
	}

	feed, err := s.publishedFeed(0)
	if err != nil {
		log.Error().Err(err).Msg("broadcast announcements failed")
		return
	}

	s.notify.Broadcast(EventUpdate, feed)
}

// List shows announcements with pagination and an optional status filter.
func (s *Service) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	pageSize := c.QueryInt("pageSize", DefaultPageSize)
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	status := c.Query("status")
	tx := s.db.Model(&models.Announcement{})
	if status != "" {
		tx = tx.Where("status = ?", status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		log.Error().Err(err).Msg("count announcements failed")
		return handler.ErrInternal(c, "failed to load announcements")
	}

	var items []models.Announcement
	offset := (page - 1) * pageSize
	err := tx.Order("updated_at DESC").Limit(pageSize).Offset(offset).Find(&items).Error
	if err != nil {
		log.Error().Err(err).Msg("query announcements failed")
		return handler.ErrInternal(c, "failed to load announcements")
	}

	return c.JSON(fiber.Map{
		"items":    items,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type announcementRequest struct {
	Title           string     `json:"title"`
	ContentHTML     string     `json:"content_html"`
	ContentMarkdown string     `json:"content_markdown"`
	Status          string     `json:"status"`
	CategoryID      *uint64    `json:"category_id"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
}

// Create adds an announcement, draft by default.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(announcementRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Title == "" {
		return handler.Err(c, fiber.StatusBadRequest, "title required")
	}

	status := req.Status
	if status == "" {
		status = models.AnnouncementStatusDraft
	}

	item := models.Announcement{
		Title:           req.Title,
		ContentHTML:     req.ContentHTML,
		ContentMarkdown: req.ContentMarkdown,
		Status:          status,
		CategoryID:      req.CategoryID,
		ScheduledAt:     req.ScheduledAt,
	}
	if err := s.db.Create(&item).Error; err != nil {
		log.Error().Err(err).Msg("create announcement failed")
		return handler.ErrInternal(c, "failed to create announcement")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &item.ID,
			map[string]string{"title": req.Title})
	}

	return c.JSON(fiber.Map{"id": item.ID})
}

// Update rewrites an announcement.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(announcementRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := s.db.Model(&models.Announcement{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":            req.Title,
		"content_html":     req.ContentHTML,
		"content_markdown": req.ContentMarkdown,
		"status":           req.Status,
		"category_id":      req.CategoryID,
		"scheduled_at":     req.ScheduledAt,
	})
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update announcement failed")
		return handler.ErrInternal(c, "failed to update announcement")
	}

	itemID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &itemID,
			map[string]string{"title": req.Title})
	}
	s.broadcastPublished()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes an announcement.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.Announcement{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete announcement failed")
		return handler.ErrInternal(c, "failed to delete announcement")
	}

	itemID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &itemID, nil)
	}
	s.broadcastPublished()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

// Publish moves an announcement to published and stamps the publish time.
func (s *Service) Publish(c *fiber.Ctx) error {
	return s.setStatus(c, models.AnnouncementStatusPublished, "publish")
}

// Offline withdraws a published announcement.
func (s *Service) Offline(c *fiber.Ctx) error {
	return s.setStatus(c, models.AnnouncementStatusOffline, "offline")
}

func (s *Service) setStatus(c *fiber.Ctx, status, action string) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	updates := map[string]interface{}{"status": status}
	if status == models.AnnouncementStatusPublished {
		updates["published_at"] = time.Now()
	}

	result := s.db.Model(&models.Announcement{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Str("status", status).
			Msg("announcement status change failed")
		return handler.ErrInternal(c, "failed to update announcement")
	}

	itemID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), action, entity, &itemID, nil)
	}
	s.broadcastPublished()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// PublicList shows the published feed with category names.
func (s *Service) PublicList(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", DefaultPublicLimit)
	if limit < 1 || limit > 100 {
		limit = DefaultPublicLimit
	}

	feed, err := s.publishedFeed(limit)
	if err != nil {
		log.Error().Err(err).Msg("query public announcements failed")
		return handler.ErrInternal(c, "failed to load announcements")
	}

	return c.JSON(fiber.Map{"items": feed})
}

// ListCategories shows all categories, newest first.
func (s *Service) ListCategories(c *fiber.Ctx) error {
	var categories []models.AnnouncementCategory
	if err := s.db.Order("id DESC").Find(&categories).Error; err != nil {
		log.Error().Err(err).Msg("query announcement categories failed")
		return handler.ErrInternal(c, "failed to load categories")
	}

	return c.JSON(fiber.Map{"items": categories})
}

type categoryRequest struct {
	Name     string  `json:"name"`
	ParentID *uint64 `json:"parent_id"`
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(c *fiber.Ctx) error {
	req := new(categoryRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" {
		return handler.Err(c, fiber.StatusBadRequest, "name required")
	}

	cat := models.AnnouncementCategory{Name: req.Name, ParentID: req.ParentID}
	if err := s.db.Create(&cat).Error; err != nil {
		log.Error().Err(err).Msg("create announcement category failed")
		return handler.ErrInternal(c, "failed to create category")
	}

	return c.JSON(fiber.Map{"id": cat.ID})
}

// UpdateCategory renames or reparents a category.
func (s *Service) UpdateCategory(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(categoryRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := s.db.Model(&models.AnnouncementCategory{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": req.Name, "parent_id": req.ParentID})
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update announcement category failed")
		return handler.ErrInternal(c, "failed to update category")
	}

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// DeleteCategory removes a category; announcements keep their dangling id.
func (s *Service) DeleteCategory(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.AnnouncementCategory{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete announcement category failed")
		return handler.ErrInternal(c, "failed to delete category")
	}

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}
