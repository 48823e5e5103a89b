package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/logging"
)

var testSecret = []byte("middleware-secret")

func tokenFor(t *testing.T, typ auth.PrincipalType, id string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Principal{Type: typ, ID: id}, testSecret, time.Minute)
	require.NoError(t, err)
	return token
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestPrincipalAndRequireRole(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.Discard()))
	app.Use(Principal(testSecret))
	app.Get("/admin", RequireRole(auth.PrincipalAdmin), func(c *fiber.Ctx) error {
		p, _ := PrincipalFrom(c)
		return c.SendString(p.ID)
	})

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/admin", "garbage"))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", tokenFor(t, auth.PrincipalUser, "u-1")))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", tokenFor(t, auth.PrincipalAdmin, "a-1")))
}

func TestRequestIDEchoed(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Use(Principal(testSecret))
	app.Get("/redeem", RateLimit(cache, "redeem", 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	token := tokenFor(t, auth.PrincipalUser, "u-1")
	assert.Equal(t, fiber.StatusOK, get(t, app, "/redeem", token))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/redeem", token))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/redeem", token))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/redeem", tokenFor(t, auth.PrincipalUser, "u-2")))

	mr.FastForward(time.Minute)
	assert.Equal(t, fiber.StatusOK, get(t, app, "/redeem", token))
}

func TestRateLimitWithoutRedisPassesThrough(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit(nil, "x", 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "/", ""))
	}
}
