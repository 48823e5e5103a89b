package account

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/auth"
	"github.com/congo-pay/loyalty/internal/ledger"
	"github.com/congo-pay/loyalty/internal/middleware"
)

var secret = []byte("account-secret")

func newTestApp(t *testing.T) (*fiber.App, *ledger.Engine) {
	t.Helper()
	engine := ledger.NewEngine(ledger.NewInMemory(), ledger.Options{})
	h := NewHandler(NewService(engine, fixedHolds{held: 100}))

	app := fiber.New()
	app.Use(middleware.Principal(secret))
	app.Get("/accounts/:ownerType/:ownerId/:currency", h.Balance)
	app.Get("/accounts/:ownerType/:ownerId/:currency/transactions", h.Transactions)
	app.Get("/accounts/:ownerType/:ownerId/:currency/verify", middleware.RequireRole(auth.PrincipalAdmin), h.Verify)
	return app, engine
}

func call(t *testing.T, app *fiber.App, path string, p auth.Principal) (int, map[string]any) {
	t.Helper()
	token, err := auth.SignHS256(p, secret, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestBalanceEndpointAuthorization(t *testing.T) {
	app, engine := newTestApp(t)
	seed(t, engine, ledger.WalletKey("v-1"), 500)

	owner := auth.Principal{Type: auth.PrincipalVendor, ID: "v-1"}
	status, body := call(t, app, "/accounts/vendor/v-1/wallet", owner)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 500, body["balance"])
	assert.EqualValues(t, 100, body["held"])
	assert.EqualValues(t, 400, body["available"])

	status, _ = call(t, app, "/accounts/VENDOR/v-1/WALLET", auth.Principal{Type: auth.PrincipalVendor, ID: "v-2"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = call(t, app, "/accounts/VENDOR/v-1/WALLET", auth.Principal{Type: auth.PrincipalAdmin, ID: "a-1"})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, "/accounts/ROBOT/v-1/WALLET", auth.Principal{Type: auth.PrincipalAdmin, ID: "a-1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestTransactionsEndpointPaging(t *testing.T) {
	app, engine := newTestApp(t)
	key := ledger.PointsKey(ledger.OwnerUser, "u-1")
	for i := 0; i < 3; i++ {
		seed(t, engine, key, 10)
	}
	user := auth.Principal{Type: auth.PrincipalUser, ID: "u-1"}

	status, body := call(t, app, "/accounts/USER/u-1/POINTS/transactions?page=1&page_size=2", user)
	require.Equal(t, fiber.StatusOK, status)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pagination["total"])
	assert.EqualValues(t, 2, pagination["last_page"])

	status, _ = call(t, app, "/accounts/USER/u-1/POINTS/transactions?type=gift", user)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestVerifyEndpointRequiresAdmin(t *testing.T) {
	app, engine := newTestApp(t)
	seed(t, engine, ledger.PointsKey(ledger.OwnerUser, "u-1"), 10)

	status, _ := call(t, app, "/accounts/USER/u-1/POINTS/verify", auth.Principal{Type: auth.PrincipalUser, ID: "u-1"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := call(t, app, "/accounts/USER/u-1/POINTS/verify", auth.Principal{Type: auth.PrincipalAdmin, ID: "a-1"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["consistent"])
}
