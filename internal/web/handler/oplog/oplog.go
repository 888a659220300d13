// Package oplog exposes the operation log over the JSON API.
package oplog

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
	// Path is the base path for the operation log.
	Path = handler.APIRoot + "/logs"

	// DefaultPageSize for pagination.
	DefaultPageSize = 20
)

// Service provides the operation-log endpoints.
type Service struct {
	cfg   *config.Config
	db    *gorm.DB
	audit *audit.Recorder
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, recorder *audit.Recorder, guard fiber.Handler) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.audit = recorder

	app.Get(Path, guard, s.List)
	app.Post(Path+"/batch-delete", guard, s.BatchDelete)
}

// List shows audit entries with simple pagination, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	pageSize := c.QueryInt("pageSize", DefaultPageSize)
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	var total int64
	if err := s.db.Model(&models.OperationLog{}).Count(&total).Error; err != nil {
		log.Error().Err(err).Msg("count operation logs failed")
		return handler.ErrInternal(c, "failed to load logs")
	}

	var entries []models.OperationLog
	offset := (page - 1) * pageSize
	err := s.db.Order("created_at DESC").Limit(pageSize).Offset(offset).Find(&entries).Error
	if err != nil {
		log.Error().Err(err).Msg("query operation logs failed")
		return handler.ErrInternal(c, "failed to load logs")
	}

	return c.JSON(fiber.Map{
		"items":    entries,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type batchDeleteRequest struct {
	IDs      []uint64 `json:"ids"`
	ClearAll bool     `json:"clearAll"`
}

// BatchDelete removes selected entries, or all of them with clearAll.
func (s *Service) BatchDelete(c *fiber.Ctx) error {
	req := new(batchDeleteRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	actor := auth.CurrentUsername(c)

	if req.ClearAll {
		result := s.db.Where("1 = 1").Delete(&models.OperationLog{})
		if result.Error != nil {
			log.Error().Err(result.Error).Msg("clear operation logs failed")
			return handler.ErrInternal(c, "failed to clear logs")
		}

		if s.audit != nil {
			s.audit.Record(actor, "clear_logs", "operation_logs", nil, nil)
		}

		return c.JSON(fiber.Map{"deleted": result.RowsAffected})
	}

	if len(req.IDs) == 0 {
		return handler.Err(c, fiber.StatusBadRequest, "No IDs provided")
	}

	result := s.db.Where("id IN ?", req.IDs).Delete(&models.OperationLog{})
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("delete operation logs failed")
		return handler.ErrInternal(c, "failed to delete logs")
	}

	if s.audit != nil {
		s.audit.Record(actor, "delete_logs", "operation_logs", nil,
			map[string]int64{"count": result.RowsAffected})
	}

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}
