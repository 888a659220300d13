package config

import (
	"github.com/chueng/site-admin/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Secrets   Secrets
	Uploads   Uploads
	GeoIP     GeoIP
	Admin     Admin
}

// Webserver implement webserver settings.
type Webserver struct {
	CleanPath      bool   // use clean path middleware to allow multi slash requests
	DisableRecover bool   // disable recover middleware
	Domain         string // domain name for the webserver
	Port           int    // listening port for the webserver
	ShutDownTime   int    // wait time for shutdown
	URL            string // base url for the webserver
	JWTSecret      string // signing secret for bearer tokens
	StaticDir      string // directory holding the built SPA assets
}

// Secrets holds the encrypted runtime configuration settings.
type Secrets struct {
	// KeyFile is where the generated 32-byte encryption key is persisted
	// when ENV_SECRET_KEY is not supplied.
	KeyFile string
	// EnvFile is the plaintext mirror read by the process at startup.
	EnvFile string
}

// Uploads holds file upload settings.
type Uploads struct {
	Dir string // directory where uploaded files are stored
}

// GeoIP holds visitor geolocation settings.
type GeoIP struct {
	// MMDBPath points at a MaxMind city database. Empty disables lookups.
	MMDBPath string
}

// Admin holds the seeded administrator account settings.
type Admin struct {
	Password string // initial admin password, overrides the built-in default
}
