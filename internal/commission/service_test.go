package commission

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/loyalty/internal/ledger"
)

func TestCreditIsIdempotentPerOrder(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewInMemory(), ledger.Options{})
	svc := NewService(engine, nil)
	ctx := context.Background()

	first, err := svc.Credit(ctx, "vendor-1", 50, "O1")
	require.NoError(t, err)
	second, err := svc.Credit(ctx, "vendor-1", 50, "O1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	acct, err := engine.Balance(ctx, ledger.WalletKey("vendor-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Balance)

	page, err := engine.Transactions(ctx, ledger.WalletKey("vendor-1"), ledger.TransactionFilter{Type: ledger.TxCommission})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCreditConcurrentRetries(t *testing.T) {
	engine := ledger.NewEngine(ledger.NewInMemory(), ledger.Options{})
	svc := NewService(engine, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Credit(ctx, "vendor-2", 75, "O2"); err != nil {
				t.Errorf("credit: %v", err)
			}
		}()
	}
	wg.Wait()

	acct, err := engine.Balance(ctx, ledger.WalletKey("vendor-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(75), acct.Balance)
}

func TestCreditValidation(t *testing.T) {
	svc := NewService(ledger.NewEngine(ledger.NewInMemory(), ledger.Options{}), nil)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "vendor-3", 0, "O3")
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = svc.Credit(ctx, "vendor-3", 10, "")
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = svc.Credit(ctx, "", 10, "O3")
	require.ErrorIs(t, err, ledger.ErrInvalidAccountKey)
}

func TestCreditHandler(t *testing.T) {
	svc := NewService(ledger.NewEngine(ledger.NewInMemory(), ledger.Options{}), nil)
	app := fiber.New()
	app.Post("/commissions", NewHandler(svc).Credit)

	send := func(body string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/commissions", bytes.NewBufferString(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		if resp.StatusCode == fiber.StatusCreated {
			var out map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, "COMMISSION", out["type"])
		}
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusCreated, send(`{"vendor_id":"v-1","amount":50,"order_ref":"O1"}`))
	assert.Equal(t, fiber.StatusCreated, send(`{"vendor_id":"v-1","amount":50,"order_ref":"O1"}`))
	assert.Equal(t, fiber.StatusBadRequest, send(`{"vendor_id":"v-1","amount":-5,"order_ref":"O2"}`))
	assert.Equal(t, fiber.StatusBadRequest, send(`{"amount":5,"order_ref":"O2"}`))
}
