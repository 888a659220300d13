// Package visitorstats serves visitor analytics: filtered listings with
// aggregates, a daily trend, batch deletion and a CSV export.
package visitorstats

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/web/handler"
)

const (
	// Path is the base path for visitor analytics.
	Path = handler.APIRoot + "/visitors"

	// DefaultLimit for listings.
	DefaultLimit = 50
	// DefaultTrendDays for the daily trend window.
	DefaultTrendDays = 30
)

// Service provides the visitor analytics endpoints.
type Service struct {
	cfg *config.Config
	db  *gorm.DB
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, guard fiber.Handler) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db

	app.Get(Path, guard, s.List)
	app.Post(Path+"/batch-delete", guard, s.BatchDelete)
	app.Get(Path+"/trend", guard, s.Trend)
	app.Get(Path+"/export", guard, s.Export)
}

// filtered applies the optional location/device substring filters.
func (s *Service) filtered(c *fiber.Ctx) *gorm.DB {
	tx := s.db.Model(&models.Visitor{})
	if location := c.Query("location"); location != "" {
		tx = tx.Where("location LIKE ?", "%"+location+"%")
	}
	if device := c.Query("device"); device != "" {
		tx = tx.Where("device LIKE ?", "%"+device+"%")
	}

	return tx
}

type aggregates struct {
	Total         int64 `json:"total"`
	UniqueIP      int64 `json:"unique_ip"`
	LocationKinds int64 `json:"location_kinds"`
	DeviceKinds   int64 `json:"device_kinds"`
}

type kindCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// List returns visits newest first plus aggregate counters. The aggregate
// counters honor the filters; the distribution breakdowns stay global.
func (s *Service) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", DefaultLimit)
	if limit < 1 || limit > 1000 {
		limit = DefaultLimit
	}

	var agg aggregates
	err := s.filtered(c).
		Select("COUNT(*) AS total, COUNT(DISTINCT ip) AS unique_ip, COUNT(DISTINCT location) AS location_kinds, COUNT(DISTINCT device) AS device_kinds").
		Scan(&agg).Error
	if err != nil {
		log.Error().Err(err).Msg("aggregate visitors failed")
		return handler.ErrInternal(c, "failed to load visitors")
	}

	tx := s.filtered(c).Order("timestamp DESC").Limit(limit)
	if page := c.QueryInt("page", 0); page > 0 {
		tx = tx.Offset((page - 1) * limit)
	}

	var visits []models.Visitor
	if err := tx.Find(&visits).Error; err != nil {
		log.Error().Err(err).Msg("query visitors failed")
		return handler.ErrInternal(c, "failed to load visitors")
	}

	var locationStats []kindCount
	err = s.db.Model(&models.Visitor{}).
		Select("location AS name, COUNT(*) AS count").
		Group("location").Order("count DESC").
		Scan(&locationStats).Error
	if err != nil {
		log.Error().Err(err).Msg("location stats failed")
		return handler.ErrInternal(c, "failed to load visitors")
	}

	var deviceStats []kindCount
	err = s.db.Model(&models.Visitor{}).
		Select("device AS name, COUNT(*) AS count").
		Group("device").Order("count DESC").
		Scan(&deviceStats).Error
	if err != nil {
		log.Error().Err(err).Msg("device stats failed")
		return handler.ErrInternal(c, "failed to load visitors")
	}

	return c.JSON(fiber.Map{
		"visitors":       visits,
		"total":          agg.Total,
		"unique_ip":      agg.UniqueIP,
		"location_kinds": agg.LocationKinds,
		"device_kinds":   agg.DeviceKinds,
		"location_stats": locationStats,
		"device_stats":   deviceStats,
	})
}

type batchDeleteRequest struct {
	IDs []uint64 `json:"ids"`
}

// BatchDelete removes selected visits.
func (s *Service) BatchDelete(c *fiber.Ctx) error {
	req := new(batchDeleteRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.IDs) == 0 {
		return handler.Err(c, fiber.StatusBadRequest, "No IDs provided")
	}

	result := s.db.Where("id IN ?", req.IDs).Delete(&models.Visitor{})
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("batch delete visitors failed")
		return handler.ErrInternal(c, "failed to delete visitors")
	}

	return c.JSON(fiber.Map{"deleted": result.RowsAffected})
}

type trendPoint struct {
	Date     string `json:"date"`
	Count    int64  `json:"count"`
	UniqueIP int64  `json:"unique_ip"`
}

// Trend returns per-day visit counts for the last N days, oldest first.
func (s *Service) Trend(c *fiber.Ctx) error {
	days := c.QueryInt("days", DefaultTrendDays)
	if days < 1 || days > 365 {
		days = DefaultTrendDays
	}

	since := time.Now().AddDate(0, 0, -days)

	var points []trendPoint
	err := s.db.Model(&models.Visitor{}).
		Select("strftime('%Y-%m-%d', timestamp) AS date, COUNT(*) AS count, COUNT(DISTINCT ip) AS unique_ip").
		Where("timestamp >= ?", since).
		Group("date").Order("date ASC").
		Scan(&points).Error
	if err != nil {
		log.Error().Err(err).Msg("visitor trend failed")
		return handler.ErrInternal(c, "failed to load trend")
	}

	return c.JSON(points)
}

// csvEscape quotes a CSV field, doubling embedded quotes.
func csvEscape(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// Export streams all visits as a CSV download. The BOM keeps Excel happy
// with UTF-8 content.
func (s *Service) Export(c *fiber.Ctx) error {
	var visits []models.Visitor
	if err := s.db.Order("timestamp DESC").Find(&visits).Error; err != nil {
		log.Error().Err(err).Msg("export visitors failed")
		return handler.ErrInternal(c, "failed to export visitors")
	}

	var sb strings.Builder
	sb.WriteString("\uFEFF")
	sb.WriteString("ID,IP,Location,Device,Time\n")

	for i, v := range visits {
		row := []string{
			fmt.Sprintf("%d", v.ID),
			v.IP,
			v.Location,
			v.Device,
			v.Timestamp.Format(time.RFC3339),
		}
		for j, field := range row {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(csvEscape(field))
		}
		if i < len(visits)-1 {
			sb.WriteByte('\n')
		}
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="visitors-%d.csv"`, time.Now().UnixMilli()))

	return c.SendString(sb.String())
}
