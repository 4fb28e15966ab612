package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

type ReferralHandler struct {
	referrals   *services.ReferralService
	partners    *services.PartnerService
	commissions *services.CommissionService
	userRepo    *repositories.UserRepo
	log         *zap.Logger
}

func NewReferralHandler(
	referrals *services.ReferralService,
	partners *services.PartnerService,
	commissions *services.CommissionService,
	userRepo *repositories.UserRepo,
	log *zap.Logger,
) *ReferralHandler {
	return &ReferralHandler{
		referrals:   referrals,
		partners:    partners,
		commissions: commissions,
		userRepo:    userRepo,
		log:         log,
	}
}

// Attach links the caller to a referrer identified by Telegram id, which is
// what referral links carry.
func (h *ReferralHandler) Attach(c *fiber.Ctx) error {
	var req dto.AttachReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ReferrerTelegramID == 0 {
		return badRequest(c, "referrer_telegram_id is required")
	}

	referrer, err := h.userRepo.GetByTelegramID(c.UserContext(), req.ReferrerTelegramID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "referrer not found"})
		}
		return respondError(c, h.log, err)
	}

	ref, err := h.referrals.Attach(c.UserContext(), middleware.GetUserID(c), referrer.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: ref})
}

func (h *ReferralHandler) Summary(c *fiber.Ctx) error {
	sum, err := h.referrals.Summary(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sum})
}

func (h *ReferralHandler) Commissions(c *fiber.Ctx) error {
	limit, offset := page(c)
	list, err := h.commissions.ListForReferrer(c.UserContext(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *ReferralHandler) Partner(c *fiber.Ctx) error {
	p, err := h.partners.Get(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}
