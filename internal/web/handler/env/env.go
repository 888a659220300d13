// Package env exposes the encrypted runtime configuration over the JSON API:
// grouped listing with masked values, secure writes, change history, rollback
// and a store/shadow-file reconciliation diagnostic.
package env

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/controller/envhistory"
	"github.com/chueng/site-admin/internal/envmgr"
	"github.com/chueng/site-admin/internal/web/handler"
	"github.com/chueng/site-admin/internal/web/middleware/auth"
)

// Path is the base path for runtime configuration.
const Path = handler.APIRoot + "/env"

// Service provides the runtime configuration endpoints.
type Service struct {
	cfg *config.Config
	mgr *envmgr.Manager
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, mgr *envmgr.Manager, guard fiber.Handler) {
	if app == nil || cfg == nil || mgr == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.mgr = mgr

	app.Get(Path, guard, s.List)
	app.Put(Path, guard, s.Set)
	app.Get(Path+"/history", guard, s.History)
	app.Post(Path+"/rollback", guard, s.Rollback)
	app.Get(Path+"/reconcile", guard, s.Reconcile)
}

// List returns all settings grouped by category, secure values masked.
func (s *Service) List(c *fiber.Ctx) error {
	grouped, err := s.mgr.List()
	if err != nil {
		log.Error().Err(err).Msg("list env vars failed")
		return handler.ErrInternal(c, "failed to load settings")
	}

	return c.JSON(grouped)
}

type setRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Secure   *bool  `json:"secure"`
}

// Set writes one setting through the full pipeline.
func (s *Service) Set(c *fiber.Ctx) error {
	req := new(setRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Key == "" {
		return handler.Err(c, fiber.StatusBadRequest, "key required")
	}

	// Secure is the default; the escape hatch must be asked for explicitly.
	secure := req.Secure == nil || *req.Secure

	err := s.mgr.Set(auth.CurrentUsername(c), req.Key, req.Value, req.Category, secure)
	if err != nil {
		if errors.Is(err, envmgr.ErrKeyInvalid) {
			return handler.Err(c, fiber.StatusBadRequest, err.Error())
		}

		log.Error().Err(err).Str("key", req.Key).Msg("env set failed")

		return handler.ErrInternal(c, "failed to save setting")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// History lists the change ledger, ciphertext only, newest first.
func (s *Service) History(c *fiber.Ctx) error {
	key := c.Query("key")
	limit := c.QueryInt("limit", envhistory.MaxLimit)

	entries, err := s.mgr.History(key, limit)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("env history failed")
		return handler.ErrInternal(c, "failed to load history")
	}

	return c.JSON(fiber.Map{"items": entries})
}

type rollbackRequest struct {
	ID uint64 `json:"id"`
}

// Rollback restores the value a key had before a given history entry.
func (s *Service) Rollback(c *fiber.Ctx) error {
	req := new(rollbackRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ID == 0 {
		return handler.Err(c, fiber.StatusBadRequest, "id required")
	}

	if _, err := s.mgr.Rollback(auth.CurrentUsername(c), req.ID); err != nil {
		if errors.Is(err, envhistory.ErrHistoryNotFound) {
			return handler.Err(c, fiber.StatusNotFound, "history not found")
		}

		log.Error().Err(err).Uint64("id", req.ID).Msg("env rollback failed")

		return handler.ErrInternal(c, "failed to rollback setting")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// Reconcile reports per-key drift between the store and the shadow file.
func (s *Service) Reconcile(c *fiber.Ctx) error {
	report, err := s.mgr.Reconcile()
	if err != nil {
		if errors.Is(err, envmgr.ErrKeyLost) {
			log.Error().Err(err).Msg("reconcile detected total decryption failure")

			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  "encryption key does not match stored values",
				"report": report,
			})
		}

		log.Error().Err(err).Msg("env reconcile failed")

		return handler.ErrInternal(c, "failed to reconcile settings")
	}

	return c.JSON(report)
}
