package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func protectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/api/whoami", Require(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"username": CurrentUsername(c)})
	})

	return app
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, 1, "admin", "admin")
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), claims.UID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestParseTokenRejects(t *testing.T) {
	token, err := IssueToken(testSecret, 1, "admin", "admin")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseToken("other-secret", token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken(testSecret, "not.a.token")
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UID:      1,
			Username: "admin",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})
		raw, err := expired.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = ParseToken(testSecret, raw)
		assert.Error(t, err)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UID: 1})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ParseToken(testSecret, raw)
		assert.Error(t, err)
	})
}

func TestRequire(t *testing.T) {
	app := protectedApp(testSecret)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/api/whoami", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodGet, "/api/whoami", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Basic abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testSecret, 1, "admin", "admin")
		require.NoError(t, err)

		req := httptest.NewRequest(fiber.MethodGet, "/api/whoami", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
