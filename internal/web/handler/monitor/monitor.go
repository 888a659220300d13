// Package monitor proxies the UptimeRobot status API for the public site
// and exposes a generic request proxy used by the admin's API tester.
// Hitting the monitors endpoint is also what records a visit.
package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/visitor"
	"github.com/chueng/site-admin/internal/web/handler"
)

const (
	// Path serves the uptime data.
	Path = handler.APIRoot + "/monitors"
	// ProxyPath relays arbitrary requests with a hard timeout.
	ProxyPath = handler.APIRoot + "/proxy-request"

	// UptimeRobotURL is the upstream endpoint.
	UptimeRobotURL = "https://api.uptimerobot.com/v2/getMonitors"

	// APIKeyEnv names the environment variable holding the UptimeRobot key.
	// It is normally populated from the encrypted settings at startup.
	APIKeyEnv = "VUE_APP_API_KEY"

	proxyTimeout = 10 * time.Second
)

// Service provides the uptime and proxy endpoints.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	resolver *visitor.Resolver
	client   *http.Client
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes. Both endpoints are public.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, resolver *visitor.Resolver) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.resolver = resolver
	s.client = &http.Client{Timeout: proxyTimeout}

	app.Get(Path, s.Monitors)
	app.Post(ProxyPath, s.ProxyRequest)
}

// uptimeRanges builds 30 daily start_end unix ranges, oldest first,
// in the underscore-pair dash-joined form the upstream expects.
func uptimeRanges(now time.Time) string {
	end := now.Unix()
	ranges := make([]string, 0, 30)
	for i := 29; i >= 0; i-- {
		from := end - int64(i+1)*86400
		to := end - int64(i)*86400
		ranges = append(ranges, fmt.Sprintf("%d_%d", from, to))
	}

	return strings.Join(ranges, "-")
}

// Monitors fetches monitor status from UptimeRobot and relays the raw
// response. Every call counts as a site visit.
func (s *Service) Monitors(c *fiber.Ctx) error {
	if s.resolver != nil {
		rawIP := c.Get(fiber.HeaderXForwardedFor)
		if rawIP == "" {
			rawIP = c.IP()
		}
		s.resolver.Track(s.db, rawIP, c.Get(fiber.HeaderUserAgent))
	}

	apiKey := os.Getenv(APIKeyEnv)
	if apiKey == "" {
		log.Error().Str("env", APIKeyEnv).Msg("uptime robot api key missing")
		return handler.ErrInternal(c, "Failed to fetch monitors")
	}

	form := url.Values{}
	form.Set("api_key", apiKey)
	form.Set("format", "json")
	form.Set("logs", "1")
	form.Set("response_times", "1")
	form.Set("ssl", "1")
	form.Set("custom_uptime_ratios", "1-7-30")
	form.Set("custom_uptime_ranges", uptimeRanges(time.Now()))

	resp, err := s.client.Post(UptimeRobotURL, fiber.MIMEApplicationForm, strings.NewReader(form.Encode()))
	if err != nil {
		log.Error().Err(err).Msg("uptime robot request failed")
		return handler.ErrInternal(c, "Failed to fetch monitors")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("reading uptime robot response failed")
		return handler.ErrInternal(c, "Failed to fetch monitors")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(body)
}

type proxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

type proxyResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers,omitempty"`
	Data       interface{}       `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   int64             `json:"duration"`
}

// proxyFailure matches the success status code so clients always get a
// resolvable envelope; status 0 marks the transport failure.
func proxyFailure(c *fiber.Ctx, err error) error {
	return c.JSON(proxyResponse{
		Status:     0,
		StatusText: "Error",
		Error:      err.Error(),
		Duration:   0,
	})
}

// ProxyRequest performs the described request server-side and reports the
// outcome. Upstream HTTP errors are resolved, not propagated: only transport
// failures produce the status-0 envelope.
func (s *Service) ProxyRequest(c *fiber.Ctx) error {
	req := new(proxyRequest)
	if err := c.BodyParser(req); err != nil {
		return handler.Err(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.URL == "" {
		return handler.Err(c, fiber.StatusBadRequest, "URL is required")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 && string(req.Body) != "null" {
		bodyReader = strings.NewReader(string(req.Body))
	}

	outbound, err := http.NewRequestWithContext(c.UserContext(), method, req.URL, bodyReader)
	if err != nil {
		return proxyFailure(c, err)
	}

	for k, v := range req.Headers {
		// the transport sets its own host header
		if strings.EqualFold(k, "host") {
			continue
		}
		outbound.Header.Set(k, v)
	}
	if bodyReader != nil && outbound.Header.Get(fiber.HeaderContentType) == "" {
		outbound.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	start := time.Now()
	resp, err := s.client.Do(outbound)
	if err != nil {
		return proxyFailure(c, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return proxyFailure(c, err)
	}

	duration := time.Since(start).Milliseconds()

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	// JSON bodies come back structured, anything else as a string
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}

	return c.JSON(proxyResponse{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Data:       data,
		Duration:   duration,
	})
}
