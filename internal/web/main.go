package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/envfile"
	"github.com/chueng/site-admin/internal/envmgr"
	fiberlogger "github.com/chueng/site-admin/internal/logger/adapter/fiber"
	"github.com/chueng/site-admin/internal/visitor"
	"github.com/chueng/site-admin/internal/web/handler/about"
	"github.com/chueng/site-admin/internal/web/handler/announcement"
	"github.com/chueng/site-admin/internal/web/handler/appstore"
	"github.com/chueng/site-admin/internal/web/handler/authn"
	"github.com/chueng/site-admin/internal/web/handler/changelog"
	"github.com/chueng/site-admin/internal/web/handler/env"
	"github.com/chueng/site-admin/internal/web/handler/friendlink"
	"github.com/chueng/site-admin/internal/web/handler/groupchat"
	"github.com/chueng/site-admin/internal/web/handler/incident"
	"github.com/chueng/site-admin/internal/web/handler/monitor"
	"github.com/chueng/site-admin/internal/web/handler/oplog"
	"github.com/chueng/site-admin/internal/web/handler/sitecard"
	"github.com/chueng/site-admin/internal/web/handler/upload"
	"github.com/chueng/site-admin/internal/web/handler/visitorstats"
	"github.com/chueng/site-admin/internal/web/middleware/auth"
	"github.com/chueng/site-admin/internal/ws"
)

// Deps bundles the shared services the handlers are wired with.
type Deps struct {
	Manager  *envmgr.Manager
	Shadow   *envfile.File
	Recorder *audit.Recorder
	Hub      *ws.Hub
	Resolver *visitor.Resolver
}

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown of the web service.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	// stop fiber http server
	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration.
func New(cfg *config.Config, db *gorm.DB, deps Deps) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	appName := cfg.Title
	if appName == "" {
		appName = "site-admin"
	}

	// create fiber app
	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        appName,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New())
	}

	// access logging
	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:        cfg.Log,
		CheckAliveURI: "/checkalive",
	}))

	// init web service
	service := &Service{
		cfg: cfg,
		App: app,
		db:  db,
	}
	service.alive.Store(true)

	app.Get("/checkalive", func(c *fiber.Ctx) error {
		if !service.alive.Load() {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		return c.SendString("OK")
	})

	// websocket upgrade for live admin updates
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}

		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(deps.Hub.Handler))

	guard := auth.Require(cfg.Webserver.JWTSecret)

	// init handlers (they register their own routes)
	authn.Handler.Init(app, cfg, db, deps.Shadow, deps.Recorder, guard)
	env.Handler.Init(app, cfg, deps.Manager, guard)
	oplog.Handler.Init(app, cfg, db, deps.Recorder, guard)
	friendlink.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	groupchat.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	appstore.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	incident.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	announcement.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	changelog.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	sitecard.Handler.Init(app, cfg, db, deps.Recorder, deps.Hub, guard)
	about.Handler.Init(app, cfg, db, deps.Recorder, guard)
	visitorstats.Handler.Init(app, cfg, db, guard)
	upload.Handler.Init(app, cfg, guard)
	monitor.Handler.Init(app, cfg, db, deps.Resolver)

	// uploaded assets
	app.Static(upload.PublicPrefix, cfg.Uploads.Dir)

	// built SPA assets with history-mode fallback, registered last
	if cfg.Webserver.StaticDir != "" {
		app.Static("/", cfg.Webserver.StaticDir)

		index := filepath.Join(cfg.Webserver.StaticDir, "index.html")
		app.Use(func(c *fiber.Ctx) error {
			if strings.HasPrefix(c.Path(), "/api") {
				return c.Next()
			}

			return c.SendFile(index)
		})
	}

	return service
}
