// Package authn provides login and password management for the admin account.
package authn

import (
	"errors"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/envfile"
	"github.com/chueng/site-admin/internal/web/handler"
	"github.com/chueng/site-admin/internal/web/middleware/auth"
)

// Path is the base path for authentication.
const Path = handler.APIRoot + "/auth"

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	symbolPattern  = regexp.MustCompile(`[^A-Za-z0-9]`)
	minPasswordLen = 8
)

// Service provides the authentication endpoints.
type Service struct {
	cfg    *config.Config
	db     *gorm.DB
	shadow *envfile.File
	audit  *audit.Recorder
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, shadow *envfile.File, recorder *audit.Recorder, guard fiber.Handler) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.shadow = shadow
	s.audit = recorder

	app.Post(Path+"/login", s.Login)
	app.Post(Path+"/change-password", guard, s.ChangePassword)
}

// isPasswordComplex requires length, case mix, a digit and a symbol.
func isPasswordComplex(p string) bool {
	return len(p) >= minPasswordLen &&
		upperPattern.MatchString(p) &&
		lowerPattern.MatchString(p) &&
		digitPattern.MatchString(p) &&
		symbolPattern.MatchString(p)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(c *fiber.Ctx) error {
	req := new(loginRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	err := s.db.Where("username = ?", req.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return handler.Err(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		log.Error().Err(err).Msg("login query failed")
		return handler.ErrInternal(c, "login failed")
	}

	if !user.VerifyPassword(req.Password) {
		return handler.Err(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	token, err := auth.IssueToken(s.cfg.Webserver.JWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		log.Error().Err(err).Msg("token signing failed")
		return handler.ErrInternal(c, "login failed")
	}

	return c.JSON(fiber.Map{"token": token})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword rotates the caller's password. The new plaintext is also
// mirrored into the shadow env file so a container restart seeds the same
// credential.
func (s *Service) ChangePassword(c *fiber.Ctx) error {
	req := new(changePasswordRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		return handler.Err(c, fiber.StatusBadRequest, "Missing parameters")
	}

	claims := auth.CurrentClaims(c)
	if claims == nil {
		return handler.Err(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	uid := claims.UID

	if !isPasswordComplex(req.NewPassword) {
		s.record(claims.Username, "password_change_failed", &uid, "complexity")
		return handler.Err(c, fiber.StatusBadRequest, "new password does not meet complexity requirements")
	}

	var user models.User
	err := s.db.First(&user, uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.record(claims.Username, "password_change_failed", &uid, "user_not_found")
		return handler.Err(c, fiber.StatusNotFound, "user not found")
	}
	if err != nil {
		s.record(claims.Username, "password_change_failed", &uid, "db_error")
		return handler.ErrInternal(c, "password change failed")
	}

	if !user.VerifyPassword(req.OldPassword) {
		s.record(claims.Username, "password_change_failed", &uid, "wrong_old_password")
		return handler.Err(c, fiber.StatusUnauthorized, "old password is incorrect")
	}

	user.Password = models.HashPassword(req.NewPassword)
	if err := s.db.Save(&user).Error; err != nil {
		log.Error().Err(err).Msg("password update failed")
		return handler.ErrInternal(c, "password change failed")
	}

	if s.shadow != nil {
		if err := s.shadow.Upsert("ADMIN_PASSWORD", req.NewPassword); err != nil {
			log.Error().Err(err).Msg("failed to mirror admin password to env file")
		}
	}

	if s.audit != nil {
		s.audit.Record(claims.Username, "password_change", "users", &uid, nil)
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (s *Service) record(actor, action string, uid *uint64, reason string) {
	if s.audit == nil {
		return
	}

	s.audit.Record(actor, action, "users", uid, map[string]string{"reason": reason})
}
