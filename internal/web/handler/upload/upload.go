// Package upload stores multipart file uploads under the configured
// uploads directory and hands back the public URL.
package upload

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/web/handler"
)

// Path is the upload endpoint.
const Path = handler.APIRoot + "/upload"

// PublicPrefix is where stored files are served from.
const PublicPrefix = "/uploads"

// Service handles file uploads.
type Service struct {
	cfg *config.Config
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers the route and makes sure the target directory exists.
func (s *Service) Init(app *fiber.App, cfg *config.Config, guard fiber.Handler) {
	if app == nil || cfg == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Uploads.Dir).Msg("creating uploads directory failed")
		return
	}

	app.Post(Path, guard, s.Upload)
}

// Upload saves the "file" form field with a random name, keeping the
// original extension, and returns its public URL.
func (s *Service) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "No file uploaded")
	}

	name := uuid.NewString() + filepath.Ext(file.Filename)
	dest := filepath.Join(s.cfg.Uploads.Dir, name)

	if err := c.SaveFile(file, dest); err != nil {
		log.Error().Err(err).Str("dest", dest).Msg("saving upload failed")
		return handler.ErrInternal(c, "failed to save file")
	}

	log.Info().Str("file", name).Int64("size", file.Size).Msg("file uploaded")

	return c.JSON(fiber.Map{"url": PublicPrefix + "/" + name})
}
