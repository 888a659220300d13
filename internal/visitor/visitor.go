// Package visitor resolves raw request metadata into visitor records: the
// client IP is normalized, geolocated against an optional MaxMind database,
// and the user agent is condensed into a short device string.
package visitor

import (
	"net"
	"strings"

	"github.com/mileusna/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/db/models"
)

const (
	// UnknownLocation is used when geolocation is unavailable or the IP is
	// private.
	UnknownLocation = "Unknown Local"
	// UnknownDevice is used when the user agent yields nothing.
	UnknownDevice = "Unknown Device"
)

// Resolver turns request metadata into visitor records. The geo database is
// optional; without one every visit resolves to UnknownLocation.
type Resolver struct {
	geo *geoip2.Reader
}

// NewResolver opens the MaxMind database at path. An empty path disables
// geolocation rather than failing.
func NewResolver(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Resolver{geo: reader}, nil
}

// Close releases the geo database.
func (r *Resolver) Close() error {
	if r.geo == nil {
		return nil
	}

	return r.geo.Close()
}

// NormalizeIP reduces a forwarded-for value to a single client address and
// maps IPv6 localhost onto its IPv4 form.
func NormalizeIP(raw string) string {
	if raw == "" {
		return "127.0.0.1"
	}

	// X-Forwarded-For carries a chain; the first hop is the client.
	first := strings.TrimSpace(strings.Split(raw, ",")[0])
	if first == "::1" {
		return "127.0.0.1"
	}

	return first
}

// Location resolves an IP to "city country", falling back to country alone,
// else UnknownLocation.
func (r *Resolver) Location(ip string) string {
	if r.geo == nil {
		return UnknownLocation
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return UnknownLocation
	}

	record, err := r.geo.City(parsed)
	if err != nil {
		return UnknownLocation
	}

	parts := make([]string, 0, 2)
	if city := record.City.Names["en"]; city != "" {
		parts = append(parts, city)
	}
	if country := record.Country.Names["en"]; country != "" {
		parts = append(parts, country)
	}

	if len(parts) == 0 {
		return UnknownLocation
	}

	return strings.Join(parts, " ")
}

// Device condenses a user agent into "device - os version - browser version",
// skipping whatever the agent does not reveal.
func Device(userAgent string) string {
	if userAgent == "" {
		return UnknownDevice
	}

	ua := useragent.Parse(userAgent)

	parts := make([]string, 0, 3)
	if ua.Device != "" {
		parts = append(parts, ua.Device)
	}
	if ua.OS != "" {
		parts = append(parts, strings.TrimSpace(ua.OS+" "+ua.OSVersion))
	}
	if ua.Name != "" {
		parts = append(parts, strings.TrimSpace(ua.Name+" "+ua.Version))
	}

	if len(parts) == 0 {
		return UnknownDevice
	}

	return strings.Join(parts, " - ")
}

// Track records one visit. Failures are logged and swallowed; tracking never
// affects the request being served.
func (r *Resolver) Track(db *gorm.DB, rawIP, userAgent string) {
	ip := NormalizeIP(rawIP)

	visit := models.Visitor{
		IP:       ip,
		Location: r.Location(ip),
		Device:   Device(userAgent),
	}

	if err := db.Create(&visit).Error; err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("failed to track visitor")
	}
}
