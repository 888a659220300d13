package announcement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

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
	require.NoError(t, db.AutoMigrate(
		&models.Announcement{},
		&models.AnnouncementCategory{},
		&models.OperationLog{},
	))

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

func TestCreateDefaultsToDraft(t *testing.T) {
	app, db, _ := setupApp(t)

	t.Run("requires title", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("draft by default", func(t *testing.T) {
		resp, payload := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
			"title":        "Maintenance window",
			"content_html": "<p>tonight</p>",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var item models.Announcement
		require.NoError(t, db.First(&item, uint64(payload["id"].(float64))).Error)
		assert.Equal(t, models.AnnouncementStatusDraft, item.Status)
		assert.Nil(t, item.PublishedAt)
	})
}

func TestLifecycle(t *testing.T) {
	app, db, notify := setupApp(t)

	_, created := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
		"title": "Launch",
	})
	id := uint64(created["id"].(float64))

	t.Run("publish stamps published_at and broadcasts", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, fmt.Sprintf("%s/%d/publish", Path, id), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var item models.Announcement
		require.NoError(t, db.First(&item, id).Error)
		assert.Equal(t, models.AnnouncementStatusPublished, item.Status)
		require.NotNil(t, item.PublishedAt)

		assert.Contains(t, notify.events, EventUpdate)
	})

	t.Run("published feed is public", func(t *testing.T) {
		_, payload := doJSON(t, app, http.MethodGet, PublicPath, nil)
		assert.Len(t, payload["items"], 1)
	})

	t.Run("offline hides from the feed", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, fmt.Sprintf("%s/%d/offline", Path, id), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, payload := doJSON(t, app, http.MethodGet, PublicPath, nil)
		assert.Len(t, payload["items"], 0)
	})
}

func TestStatusFilter(t *testing.T) {
	app, _, _ := setupApp(t)

	doJSON(t, app, http.MethodPost, Path, map[string]interface{}{"title": "One"})
	doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
		"title": "Two", "status": models.AnnouncementStatusPublished,
	})

	_, payload := doJSON(t, app, http.MethodGet, Path+"?status=draft", nil)
	assert.EqualValues(t, 1, payload["total"])
}

func TestCategories(t *testing.T) {
	app, _, _ := setupApp(t)

	_, created := doJSON(t, app, http.MethodPost, CategoryPath, map[string]interface{}{
		"name": "Releases",
	})
	catID := uint64(created["id"].(float64))

	_, ann := doJSON(t, app, http.MethodPost, Path, map[string]interface{}{
		"title":       "v2",
		"status":      models.AnnouncementStatusPublished,
		"category_id": catID,
	})
	require.NotZero(t, ann["id"])

	// category name is joined into the public feed
	_, payload := doJSON(t, app, http.MethodGet, PublicPath, nil)
	items, ok := payload["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)

	first, ok := items[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Releases", first["category_name"])
}
