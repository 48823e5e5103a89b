package points

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/middleware"
)

var secret = []byte("points-secret")

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc)

	app := fiber.New()
	app.Use(middleware.Principal(secret))
	app.Post("/points/redeem", middleware.RequireRole(auth.PrincipalUser, auth.PrincipalVendor, auth.PrincipalSystem), h.Redeem)
	app.Post("/points/award", middleware.RequireRole(auth.PrincipalSystem), h.Award)
	app.Post("/points/adjust", middleware.RequireRole(auth.PrincipalAdmin), h.Adjust)
	return app
}

func post(t *testing.T, app *fiber.App, path string, p auth.Principal, body any) (int, map[string]any) {
	t.Helper()
	token, err := auth.SignHS256(p, secret, time.Minute)
	require.NoError(t, err)
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRedeemEndpoint(t *testing.T) {
	app := newTestApp(t)
	adminP := auth.Principal{Type: auth.PrincipalAdmin, ID: "a-1"}
	user := auth.Principal{Type: auth.PrincipalUser, ID: "u-1"}

	status, body := post(t, app, "/points/adjust", adminP, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "points": 1000, "description": "promo",
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.EqualValues(t, 1000, body["balance_after"])
	assert.Equal(t, "ADMIN", body["actor_type"])

	status, body = post(t, app, "/points/redeem", user, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "points": 400, "order_ref": "O9",
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.EqualValues(t, 4, body["discount_amount"])
	assert.EqualValues(t, 600, body["remaining_balance"])

	status, _ = post(t, app, "/points/redeem", user, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "points": 700, "order_ref": "O10",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = post(t, app, "/points/redeem", auth.Principal{Type: auth.PrincipalUser, ID: "u-2"}, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "points": 100, "order_ref": "O11",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = post(t, app, "/points/redeem", user, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "order_ref": "O12",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdjustAndAwardRoles(t *testing.T) {
	app := newTestApp(t)
	user := auth.Principal{Type: auth.PrincipalUser, ID: "u-1"}
	system := auth.Principal{Type: auth.PrincipalSystem, ID: "settlement"}

	status, _ := post(t, app, "/points/adjust", user, map[string]any{
		"owner_type": "USER", "owner_id": "u-1", "points": 10, "description": "self",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := post(t, app, "/points/award", system, map[string]any{
		"owner_type": "VENDOR", "owner_id": "v-1", "points": 25, "order_ref": "O1",
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "EARNED", body["type"])
}
