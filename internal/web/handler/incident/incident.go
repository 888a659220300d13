// Package incident provides CRUD for service incidents and maintenance
// windows, plus the public active-incident banner feed.
package incident

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
	// Path is the base path for incident management.
	Path = handler.APIRoot + "/incidents"
	// PublicActivePath is the unauthenticated active-incident feed.
	PublicActivePath = handler.PublicRoot + "/incidents/active"

	// EventUpdate is the push-channel event type after any mutation.
	EventUpdate = "incidents:update"

	entity = "incidents"
)

// Broadcaster pushes an event to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Service provides CRUD operations for incidents.
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
	app.Get(PublicActivePath, s.PublicActive)
}

// activeIncidents returns unresolved incidents and maintenance windows that
// have not ended yet, maintenance before incidents, latest first.
func (s *Service) activeIncidents() ([]models.Incident, error) {
	var incidents []models.Incident
	err := s.db.
		Where("status != ?", models.IncidentStatusResolved).
		Or(s.db.Where("type = ?", models.IncidentTypeMaintenance).
			Where("end_time > ?", time.Now().Unix())).
		Order("type DESC, start_time DESC, created_at DESC").
		Find(&incidents).Error

	return incidents, err
}

func (s *Service) broadcastActive() {
	if s.notify == nil {
		return
	}

	incidents, err := s.activeIncidents()
	if err != nil {
		log.Error().Err(err).Msg("broadcast incidents failed")
		return
	}

	s.notify.Broadcast(EventUpdate, incidents)
}

// List shows all incidents, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	var incidents []models.Incident
	if err := s.db.Order("created_at DESC").Find(&incidents).Error; err != nil {
		log.Error().Err(err).Msg("query incidents failed")
		return handler.ErrInternal(c, "failed to load incidents")
	}

	return c.JSON(fiber.Map{"items": incidents})
}

type incidentRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

// Create adds an incident.
func (s *Service) Create(c *fiber.Ctx) error {
	req := new(incidentRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Title == "" {
		return handler.Err(c, fiber.StatusBadRequest, "title required")
	}

	incident := models.Incident{
		Title:     req.Title,
		Content:   req.Content,
		Status:    req.Status,
		Type:      req.Type,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if err := s.db.Create(&incident).Error; err != nil {
		log.Error().Err(err).Msg("create incident failed")
		return handler.ErrInternal(c, "failed to create incident")
	}

	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "create", entity, &incident.ID,
			map[string]string{"title": req.Title})
	}
	s.broadcastActive()

	return c.JSON(fiber.Map{"id": incident.ID})
}

// Update rewrites an incident.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	req := new(incidentRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := s.db.Model(&models.Incident{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":      req.Title,
		"content":    req.Content,
		"status":     req.Status,
		"type":       req.Type,
		"start_time": req.StartTime,
		"end_time":   req.EndTime,
	})
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("update incident failed")
		return handler.ErrInternal(c, "failed to update incident")
	}

	incidentID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "update", entity, &incidentID,
			map[string]string{"title": req.Title, "status": req.Status})
	}
	s.broadcastActive()

	return c.JSON(fiber.Map{"changed": result.RowsAffected})
}

// Delete removes an incident.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return handler.Err(c, fiber.StatusBadRequest, "invalid id")
	}

	result := s.db.Delete(&models.Incident{}, id)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("id", id).Msg("delete incident failed")
		return handler.ErrInternal(c, "failed to delete incident")
	}

	incidentID := uint64(id)
	if s.audit != nil {
		s.audit.Record(auth.CurrentUsername(c), "delete", entity, &incidentID, nil)
	}
	s.broadcastActive()

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

// PublicActive shows the active-incident banner feed.
func (s *Service) PublicActive(c *fiber.Ctx) error {
	incidents, err := s.activeIncidents()
	if err != nil {
		log.Error().Err(err).Msg("query active incidents failed")
		return handler.ErrInternal(c, "failed to load incidents")
	}

	return c.JSON(fiber.Map{"items": incidents})
}
