package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chueng/site-admin/internal/config"
)

func setupApp(t *testing.T) (*fiber.App, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{Uploads: config.Uploads{Dir: dir}}

	app := fiber.New()
	passthrough := func(c *fiber.Ctx) error { return c.Next() }

	svc := Service{}
	svc.Init(app, cfg, passthrough)

	return app, dir
}

func TestUpload(t *testing.T) {
	app, dir := setupApp(t)

	t.Run("rejects missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, Path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stores file and returns url", func(t *testing.T) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", "avatar.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("png-bytes"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, Path, &buf)
		req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(raw, &payload))

		url := payload["url"]
		assert.True(t, strings.HasPrefix(url, PublicPrefix+"/"))
		assert.True(t, strings.HasSuffix(url, ".png"))

		stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, PublicPrefix+"/")))
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(stored))
	})
}
