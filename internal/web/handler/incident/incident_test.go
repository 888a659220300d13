package incident

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/audit"
	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
)

type captureNotify struct {
	events []string
}

func (c *captureNotify) Broadcast(eventType string, _ interface{}) {
	c.events = append(c.events, eventType)
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB, *captureNotify) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Incident{}, &models.OperationLog{}))

	notify := &captureNotify{}
	app := fiber.New()
	passthrough := func(c *fiber.Ctx) error { return c.Next() }

	svc := Service{}
	svc.Init(app, &config.Config{}, db, audit.NewRecorder(db, nil), notify, passthrough)

	return app, db, notify
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}

	return resp, payload
}

func TestCreateBroadcastsActive(t *testing.T) {
	app, _, notify := setupApp(t)

	resp, payload := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
		"title":  "Database degraded",
		"status": "investigating",
		"type":   models.IncidentTypeIncident,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotZero(t, payload["id"])
	assert.Contains(t, notify.events, EventUpdate)
}

func TestPublicActive(t *testing.T) {
	app, db, _ := setupApp(t)

	now := time.Now().Unix()
	seed := []models.Incident{
		{Title: "Open incident", Status: "investigating", Type: models.IncidentTypeIncident},
		{Title: "Closed incident", Status: models.IncidentStatusResolved, Type: models.IncidentTypeIncident},
		{Title: "Upcoming maintenance", Status: models.IncidentStatusResolved,
			Type: models.IncidentTypeMaintenance, StartTime: now, EndTime: now + 3600},
		{Title: "Past maintenance", Status: models.IncidentStatusResolved,
			Type: models.IncidentTypeMaintenance, StartTime: now - 7200, EndTime: now - 3600},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	_, payload := doJSON(t, app, http.MethodGet, PublicActivePath, nil)
	items, ok := payload["items"].([]interface{})
	require.True(t, ok)

	// unresolved incidents plus maintenance windows that have not ended
	require.Len(t, items, 2)

	titles := make([]string, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		require.True(t, ok)
		titles = append(titles, item["title"].(string))
	}
	assert.Contains(t, titles, "Open incident")
	assert.Contains(t, titles, "Upcoming maintenance")
}

func TestDelete(t *testing.T) {
	app, db, _ := setupApp(t)

	_, created := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
		"title": "Short outage",
	})
	id := int(created["id"].(float64))

	resp, payload := doJSON(t, app, http.MethodDelete, Path+"/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, payload["deleted"])

	var count int64
	require.NoError(t, db.Model(&models.Incident{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func itoa(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
