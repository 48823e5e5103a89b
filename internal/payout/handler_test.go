package payout

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

var secret = []byte("payout-secret")

var (
	vendor = auth.Principal{Type: auth.PrincipalVendor, ID: "v-1"}
	other  = auth.Principal{Type: auth.PrincipalVendor, ID: "v-2"}
	admin  = auth.Principal{Type: auth.PrincipalAdmin, ID: "a-1"}
)

func newTestApp(t *testing.T) (*fiber.App, fixture) {
	t.Helper()
	f := newFixture(t, NewMemoryRepository())
	h := NewHandler(f.svc)

	app := fiber.New()
	app.Use(middleware.Principal(secret))
	app.Post("/payouts", middleware.RequireRole(auth.PrincipalVendor), h.Create)
	app.Get("/payouts/:id", middleware.RequireRole(auth.PrincipalVendor, auth.PrincipalAdmin), h.Get)
	app.Get("/vendors/:vendorId/payouts", middleware.RequireRole(auth.PrincipalVendor, auth.PrincipalAdmin), h.List)
	app.Post("/payouts/:id/decision", middleware.RequireRole(auth.PrincipalAdmin), h.Decide)
	app.Post("/payouts/:id/complete", middleware.RequireRole(auth.PrincipalAdmin), h.Complete)
	app.Post("/payouts/:id/cancel", middleware.RequireRole(auth.PrincipalVendor), h.Cancel)
	return app, f
}

func do(t *testing.T, app *fiber.App, method, path string, p auth.Principal, body any) (int, map[string]any) {
	t.Helper()
	token, err := auth.SignHS256(p, secret, time.Minute)
	require.NoError(t, err)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestPayoutLifecycleOverHTTP(t *testing.T) {
	app, f := newTestApp(t)
	f.fund(t, "v-1", 1_000)

	status, body := do(t, app, fiber.MethodPost, "/payouts", vendor, map[string]any{"amount": 600, "bank_account_id": "iban-1"})
	require.Equal(t, fiber.StatusCreated, status)
	id := body["id"].(string)
	assert.Equal(t, "PENDING", body["status"])

	status, _ = do(t, app, fiber.MethodPost, "/payouts", vendor, map[string]any{"amount": 600, "bank_account_id": "iban-1"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = do(t, app, fiber.MethodGet, "/payouts/"+id, other, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = do(t, app, fiber.MethodGet, "/vendors/v-1/payouts", other, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = do(t, app, fiber.MethodPost, "/payouts/"+id+"/complete", admin, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = do(t, app, fiber.MethodPost, "/payouts/"+id+"/decision", admin, map[string]any{"decision": "approved"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, "a-1", body["decided_by"])

	status, body = do(t, app, fiber.MethodPost, "/payouts/"+id+"/complete", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.NotEmpty(t, body["transaction_id"])
	assert.Equal(t, int64(400), f.balance(t, "v-1"))

	status, body = do(t, app, fiber.MethodGet, "/vendors/v-1/payouts?status=completed", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestCancelOverHTTP(t *testing.T) {
	app, f := newTestApp(t)
	f.fund(t, "v-1", 1_000)

	_, body := do(t, app, fiber.MethodPost, "/payouts", vendor, map[string]any{"amount": 200, "bank_account_id": "iban-1"})
	id := body["id"].(string)

	status, _ := do(t, app, fiber.MethodPost, "/payouts/"+id+"/cancel", other, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = do(t, app, fiber.MethodPost, "/payouts/"+id+"/cancel", vendor, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "CANCELLED", body["status"])

	status, _ = do(t, app, fiber.MethodPost, "/payouts/"+id+"/decision", admin, map[string]any{"decision": "REJECTED"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = do(t, app, fiber.MethodPost, "/payouts/"+id+"/decision", admin, map[string]any{"decision": "MAYBE"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}
