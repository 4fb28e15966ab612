package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentAPI is the part of services.PaymentService the user endpoints need.
type PaymentAPI interface {
	Create(ctx context.Context, userID uuid.UUID, amountGTON decimal.Decimal, providerID, currency string) (*services.CreateResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Payment, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
}

type ProviderLister interface {
	List() []models.PaymentProvider
}

type PaymentHandler struct {
	payments  PaymentAPI
	providers ProviderLister
	log       *zap.Logger
}

func NewPaymentHandler(payments PaymentAPI, providers ProviderLister, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, providers: providers, log: log}
}

func (h *PaymentHandler) ListProviders(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.providers.List()})
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Provider == "" {
		return badRequest(c, "provider is required")
	}
	amount, err := money.ParsePositive(req.AmountGTON)
	if err != nil {
		return badRequest(c, "amount_gton must be a positive decimal")
	}

	res, err := h.payments.Create(c.UserContext(), middleware.GetUserID(c), amount, req.Provider, req.Currency)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.CreatePaymentResponse{
		Payment: res.Payment,
		PayURL:  res.PayURL,
	}})
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	limit, offset := page(c)
	list, err := h.payments.ListForUser(c.UserContext(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid payment id")
	}
	p, err := h.payments.Get(c.UserContext(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}
