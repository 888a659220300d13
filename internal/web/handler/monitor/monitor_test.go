package monitor

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chueng/site-admin/internal/config"
	"github.com/chueng/site-admin/internal/db/models"
	"github.com/chueng/site-admin/internal/visitor"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Visitor{}))

	resolver, err := visitor.NewResolver("")
	require.NoError(t, err)

	app := fiber.New()
	svc := Service{}
	svc.Init(app, &config.Config{}, db, resolver)

	return app, db
}

func TestUptimeRanges(t *testing.T) {
	now := time.Unix(100*86400, 0)
	got := uptimeRanges(now)

	parts := strings.Split(got, "-")
	require.Len(t, parts, 30)

	// oldest range first, each spanning one day and ending at now
	assert.Equal(t, "6048000_6134400", parts[0])
	assert.Equal(t, "8553600_8640000", parts[29])
}

func TestMonitorsWithoutAPIKey(t *testing.T) {
	app, db := setupApp(t)
	t.Setenv(APIKeyEnv, "")

	req := httptest.NewRequest(http.MethodGet, Path, nil)
	req.Header.Set(fiber.HeaderUserAgent, "test-agent")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// the visit is recorded even when the upstream call never happens
	var count int64
	require.NoError(t, db.Model(&models.Visitor{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProxyRequest(t *testing.T) {
	app, _ := setupApp(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`{"hello":"world"}`))
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			_, _ = w.Write(body)
		}
	}))
	defer upstream.Close()

	doProxy := func(t *testing.T, payload map[string]interface{}) (int, map[string]interface{}) {
		t.Helper()

		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, ProxyPath, bytes.NewReader(raw))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		out, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(out, &body))

		return resp.StatusCode, body
	}

	t.Run("requires url", func(t *testing.T) {
		status, body := doProxy(t, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "URL is required", body["error"])
	})

	t.Run("resolves non-2xx upstream status", func(t *testing.T) {
		status, body := doProxy(t, map[string]interface{}{"url": upstream.URL + "/json"})
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, http.StatusTeapot, body["status"])

		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "world", data["hello"])
	})

	t.Run("forwards method and body", func(t *testing.T) {
		status, body := doProxy(t, map[string]interface{}{
			"url":    upstream.URL + "/echo",
			"method": "post",
			"body":   map[string]string{"ping": "pong"},
		})
		assert.Equal(t, http.StatusOK, status)

		data, ok := body["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "pong", data["ping"])
	})

	t.Run("transport failure yields status zero", func(t *testing.T) {
		status, body := doProxy(t, map[string]interface{}{"url": "http://127.0.0.1:1/unreachable"})
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 0, body["status"])
		assert.Equal(t, "Error", body["statusText"])
		assert.NotEmpty(t, body["error"])
	})
}
