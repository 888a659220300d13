package daemon

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/dsn"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/envfile"
	"github.com/chueng/site-admin/internal/envmgr"
	"github.com/chueng/site-admin/internal/secret"
	"github.com/chueng/site-admin/internal/visitor"
	"github.com/chueng/site-admin/internal/web"
	"github.com/chueng/site-admin/internal/ws"
)

// publishInterval is how often scheduled drafts are checked for promotion.
const publishInterval = time.Minute

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	db         *gorm.DB
	hub        *ws.Hub
	webService *web.Service
	stop       chan struct{}
}

// Start runs the scheduled-publish ticker and the web service. It blocks
// until the web service stops.
func (d *Daemon) Start() error {
	go d.publishLoop()
	go d.webService.WaitShutdown()

	defer close(d.stop)

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// publishLoop promotes drafts whose scheduled time has passed.
func (d *Daemon) publishLoop() {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.publishScheduled()
		}
	}
}

func (d *Daemon) publishScheduled() {
	now := time.Now()

	result := d.db.Model(&models.Announcement{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.AnnouncementStatusDraft, now).
		Updates(map[string]interface{}{
			"status":       models.AnnouncementStatusPublished,
			"published_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("scheduled publish failed")
		return
	}

	if result.RowsAffected == 0 {
		return
	}

	log.Info().Int64("count", result.RowsAffected).Msg("scheduled announcements published")

	var published []models.Announcement
	err := d.db.Where("status = ?", models.AnnouncementStatusPublished).
		Order("published_at DESC, updated_at DESC").
		Find(&published).Error
	if err != nil {
		log.Error().Err(err).Msg("loading published announcements failed")
		return
	}

	d.hub.Broadcast("announcements:update", published)
}

// openDB connects with the configured gorm engine.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	source := dsn.Create(cfg)

	switch cfg.DB.GormEngine {
	case "mysql":
		return gorm.Open(gormmysql.Open(source), &gorm.Config{})
	case "postgres":
		return gorm.Open(gormpostgres.Open(source), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(source), &gorm.Config{})
	}
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.EnvVar{},
		&models.EnvHistory{},
		&models.OperationLog{},
		&models.FriendLink{},
		&models.FriendLinkIcon{},
		&models.GroupChat{},
		&models.App{},
		&models.Incident{},
		&models.Announcement{},
		&models.AnnouncementCategory{},
		&models.Changelog{},
		&models.SiteCard{},
		&models.AboutPage{},
		&models.Visitor{},
	); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	seed(cfg, db)

	// the plaintext mirror feeds the process environment at startup
	shadow := envfile.New(cfg.Secrets.EnvFile)
	if err = shadow.Load(); err != nil {
		log.Warn().Err(err).Str("file", cfg.Secrets.EnvFile).Msg("loading env mirror failed")
	}

	key, err := secret.NewCustodian(cfg.Secrets.KeyFile).ResolveKey()
	if err != nil {
		return nil, fmt.Errorf("resolving encryption key: %w", err)
	}

	cipher, err := secret.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	hub := ws.NewHub()
	recorder := audit.NewRecorder(db, hub)
	manager := envmgr.New(db, cipher, shadow, recorder, hub)

	resolver, err := visitor.NewResolver(cfg.GeoIP.MMDBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.GeoIP.MMDBPath).Msg("geoip database unavailable")

		resolver, _ = visitor.NewResolver("")
	}

	webService := web.New(cfg, db, web.Deps{
		Manager:  manager,
		Shadow:   shadow,
		Recorder: recorder,
		Hub:      hub,
		Resolver: resolver,
	})

	return &Daemon{
		cfg:        cfg,
		db:         db,
		hub:        hub,
		webService: webService,
		stop:       make(chan struct{}),
	}, nil
}
