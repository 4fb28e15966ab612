package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPayments struct {
	createErr error
	owner     uuid.UUID
	payment   *models.Payment

	gotAmount   decimal.Decimal
	gotProvider string
	gotCurrency string
}

func (s *stubPayments) Create(_ context.Context, userID uuid.UUID, amount decimal.Decimal, providerID, currency string) (*services.CreateResult, error) {
	s.gotAmount, s.gotProvider, s.gotCurrency = amount, providerID, currency
	if s.createErr != nil {
		return nil, s.createErr
	}
	p := &models.Payment{ID: uuid.New(), UserID: userID, ProviderID: providerID, AmountGTON: amount, Status: models.PaymentStatusPending}
	return &services.CreateResult{Payment: p, PayURL: "https://pay.example/x"}, nil
}

func (s *stubPayments) Get(_ context.Context, userID, id uuid.UUID) (*models.Payment, error) {
	if s.payment == nil || s.payment.ID != id || userID != s.owner {
		return nil, services.ErrPaymentNotFound
	}
	return s.payment, nil
}

func (s *stubPayments) ListForUser(context.Context, uuid.UUID, int, int) ([]models.Payment, error) {
	return nil, nil
}

type stubProviders []models.PaymentProvider

func (s stubProviders) List() []models.PaymentProvider { return s }

func paymentApp(userID uuid.UUID, payments PaymentAPI) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.CtxUserID, userID)
		return c.Next()
	})
	h := NewPaymentHandler(payments, stubProviders{{ID: "cryptobot", Enabled: true}}, zap.NewNop())
	app.Get("/providers", h.ListProviders)
	app.Post("/payments", h.CreatePayment)
	app.Get("/payments/:id", h.GetPayment)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestPaymentHandler_Create(t *testing.T) {
	stub := &stubPayments{}
	app := paymentApp(uuid.New(), stub)

	status, body := postJSON(t, app, "/payments", `{"amount_gton":"10.5","provider":"cryptobot","currency":"USDT"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.True(t, stub.gotAmount.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, "cryptobot", stub.gotProvider)
	assert.Equal(t, "USDT", stub.gotCurrency)

	var resp struct {
		OK   bool                      `json:"ok"`
		Data dto.CreatePaymentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "https://pay.example/x", resp.Data.PayURL)
}

func TestPaymentHandler_CreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, fiber.StatusBadRequest},
		{"no provider", `{"amount_gton":"1"}`, nil, fiber.StatusBadRequest},
		{"zero amount", `{"amount_gton":"0","provider":"cryptobot"}`, nil, fiber.StatusBadRequest},
		{"below minimum", `{"amount_gton":"0.5","provider":"cryptobot"}`, services.ErrAmountTooSmall, fiber.StatusBadRequest},
		{"unknown provider", `{"amount_gton":"5","provider":"nope"}`, services.ErrUnknownProvider, fiber.StatusNotFound},
		{"provider down", `{"amount_gton":"5","provider":"cryptobot"}`, services.ErrProviderFailed, fiber.StatusBadGateway},
		{"no rate", `{"amount_gton":"5","provider":"cryptobot"}`, services.ErrRateUnavailable, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := paymentApp(uuid.New(), &stubPayments{createErr: tt.err})
			status, _ := postJSON(t, app, "/payments", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestPaymentHandler_GetOwnerOnly(t *testing.T) {
	owner := uuid.New()
	p := &models.Payment{ID: uuid.New(), UserID: owner, Status: models.PaymentStatusPending}

	get := func(userID uuid.UUID, id string) int {
		app := paymentApp(userID, &stubPayments{owner: owner, payment: p})
		resp, err := app.Test(httptest.NewRequest("GET", "/payments/"+id, nil))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, get(owner, p.ID.String()))
	assert.Equal(t, fiber.StatusNotFound, get(uuid.New(), p.ID.String()))
	assert.Equal(t, fiber.StatusBadRequest, get(owner, "not-a-uuid"))
}

func TestPaymentHandler_ListProviders(t *testing.T) {
	app := paymentApp(uuid.New(), &stubPayments{})
	resp, err := app.Test(httptest.NewRequest("GET", "/providers", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"id":"cryptobot"`)
}
