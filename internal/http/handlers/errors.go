package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

// statusFor maps service sentinels to HTTP codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, services.ErrAmountTooSmall),
		errors.Is(err, services.ErrAmountTooLarge),
		errors.Is(err, services.ErrUnsupportedCurrency),
		errors.Is(err, services.ErrInvalidWalletKind),
		errors.Is(err, services.ErrInvalidSource),
		errors.Is(err, services.ErrInvalidPercent),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrSelfReferral):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrWalletNotFound),
		errors.Is(err, services.ErrPartnerNotFound),
		errors.Is(err, services.ErrUnknownProvider):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrAlreadyReferred):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrProviderFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, services.ErrRateUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "internal server error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

// page reads limit/offset query params with sane bounds.
func page(c *fiber.Ctx) (int, int) {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
