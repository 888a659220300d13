package sitecard

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

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SiteCard{}, &models.OperationLog{}))

	cards := []models.SiteCard{
		{Key: "friend_links", Title: "Links", SortOrder: 10, Enabled: true},
		{Key: "apps", Title: "Apps", SortOrder: 20, Enabled: true},
	}
	for i := range cards {
		require.NoError(t, db.Create(&cards[i]).Error)
	}

	app := fiber.New()
	passthrough := func(c *fiber.Ctx) error { return c.Next() }

	svc := Service{}
	svc.Init(app, &config.Config{}, db, audit.NewRecorder(db, nil), nil, passthrough)

	return app, db
}

func putCard(t *testing.T, app *fiber.App, id uint64, body map[string]interface{}) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("%s/%d", Path, id), bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func TestUpdateStyle(t *testing.T) {
	app, db := setupApp(t)

	t.Run("object style stored as raw JSON", func(t *testing.T) {
		resp := putCard(t, app, 1, map[string]interface{}{
			"title":      "Links",
			"enabled":    true,
			"sort_order": 10,
			"style":      map[string]interface{}{"span": 12, "accent": "bg-yellow"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var card models.SiteCard
		require.NoError(t, db.First(&card, 1).Error)
		assert.JSONEq(t, `{"span":12,"accent":"bg-yellow"}`, card.Style)
	})

	t.Run("string style stored unwrapped", func(t *testing.T) {
		resp := putCard(t, app, 1, map[string]interface{}{
			"title":   "Links",
			"enabled": true,
			"style":   `{"span":24}`,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var card models.SiteCard
		require.NoError(t, db.First(&card, 1).Error)
		assert.Equal(t, `{"span":24}`, card.Style)
	})
}

func TestPublicListFiltersDisabled(t *testing.T) {
	app, _ := setupApp(t)

	resp := putCard(t, app, 2, map[string]interface{}{
		"title": "Apps", "enabled": false, "sort_order": 20,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, PublicPath, nil)
	res, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))

	items, ok := payload["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)

	first, ok := items[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "friend_links", first["key"])
}
