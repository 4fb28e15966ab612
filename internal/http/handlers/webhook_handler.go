package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/providers"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, providerID string, payload []byte, headers map[string]string) (*providers.WebhookResult, error)
}

// WebhookHandler receives provider callbacks. Accepted deliveries always get
// a bare {"ok":true}; payment state is never echoed back to the caller.
type WebhookHandler struct {
	processor WebhookProcessor
	log       *zap.Logger
}

func NewWebhookHandler(processor WebhookProcessor, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: log}
}

func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	providerID := c.Params("provider")

	headers := make(map[string]string)
	for k, v := range c.GetReqHeaders() {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	res, err := h.processor.HandleWebhook(c.UserContext(), providerID, payload, headers)
	switch {
	case err == nil:
		fields := []zap.Field{zap.String("provider", providerID)}
		if res != nil {
			fields = append(fields, zap.String("external_id", res.ExternalID), zap.String("status", string(res.Status)))
		}
		h.log.Info("webhook processed", fields...)
		return c.JSON(dto.SuccessResponse{OK: true})

	case errors.Is(err, providers.ErrWebhookRejected):
		h.log.Warn("webhook rejected", zap.String("provider", providerID), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthorized"})

	case errors.Is(err, services.ErrUnknownProvider), errors.Is(err, services.ErrPaymentNotFound):
		h.log.Warn("webhook for unknown target", zap.String("provider", providerID), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})

	case errors.Is(err, services.ErrRateUnavailable):
		// the payment stays pending and the reconciler settles it later
		h.log.Warn("webhook deferred", zap.String("provider", providerID), zap.Error(err))
		return c.JSON(dto.SuccessResponse{OK: true})
	}

	h.log.Error("webhook failed", zap.String("provider", providerID), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
}
