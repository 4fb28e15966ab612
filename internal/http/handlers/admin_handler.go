package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler serves the operator endpoints. Every mutation is audited
// with the acting admin's user id.
type AdminHandler struct {
	ledger   *services.LedgerService
	payments *services.PaymentService
	partners *services.PartnerService
	audit    *services.AuditService
	userRepo *repositories.UserRepo
	log      *zap.Logger
}

func NewAdminHandler(
	ledger *services.LedgerService,
	payments *services.PaymentService,
	partners *services.PartnerService,
	audit *services.AuditService,
	userRepo *repositories.UserRepo,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		payments: payments,
		partners: partners,
		audit:    audit,
		userRepo: userRepo,
		log:      log,
	}
}

func (h *AdminHandler) AdjustWallet(c *fiber.Ctx) error {
	var req dto.AdjustWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return badRequest(c, "invalid user_id")
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		return badRequest(c, "amount must be a positive decimal")
	}
	if req.Reason == "" {
		return badRequest(c, "reason is required")
	}
	adminID := middleware.GetUserID(c)
	ctx := c.UserContext()

	var res *services.LedgerResult
	switch req.Direction {
	case models.DirectionCredit:
		res, err = h.ledger.Credit(ctx, services.CreditRequest{
			UserID:        userID,
			Kind:          req.Kind,
			Amount:        amount,
			Source:        models.SourceAdmin,
			ReferenceType: "admin",
			ReferenceID:   &adminID,
			Description:   req.Reason,
		})
	case models.DirectionDebit:
		res, err = h.ledger.Debit(ctx, services.DebitRequest{
			UserID:        userID,
			Kind:          req.Kind,
			Amount:        amount,
			Source:        models.SourceAdmin,
			Reason:        req.Reason,
			ReferenceType: "admin",
			ReferenceID:   &adminID,
		})
	default:
		return badRequest(c, "direction must be credit or debit")
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.audit.Record(ctx, adminID, models.AuditWalletAdjust, "wallet", res.Wallet.ID, map[string]any{
		"direction": req.Direction,
		"kind":      res.Wallet.Kind,
		"amount":    money.String(amount),
		"reason":    req.Reason,
		"entry_id":  res.Entry.ID.String(),
	})
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *AdminHandler) ConfirmPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid payment id")
	}
	ctx := c.UserContext()

	res, err := h.payments.Confirm(ctx, id, services.PathAdmin)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if res.Credited {
		h.audit.Record(ctx, middleware.GetUserID(c), models.AuditPaymentConfirm, "payment", id, map[string]any{
			"credited_gton": money.String(*res.Payment.CreditedGTON),
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ConfirmPaymentResponse{
		Payment:  res.Payment,
		Credited: res.Credited,
	}})
}

func (h *AdminHandler) PromotePartner(c *fiber.Ctx) error {
	var req dto.PromotePartnerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return badRequest(c, "invalid user_id")
	}
	// empty percent: the service applies referral.partner_level1_percent
	var pct *decimal.Decimal
	if strings.TrimSpace(req.Level1Percent) != "" {
		v, err := money.Parse(req.Level1Percent)
		if err != nil {
			return badRequest(c, "invalid level1_percent")
		}
		pct = &v
	}
	if _, err := h.userRepo.GetByID(c.UserContext(), userID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
	}

	p, err := h.partners.Promote(c.UserContext(), middleware.GetUserID(c), userID, pct)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

func (h *AdminHandler) SetPartnerStatus(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	var req dto.SetPartnerStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	p, err := h.partners.SetStatus(c.UserContext(), middleware.GetUserID(c), userID, req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

// VerifyWallet replays one wallet's ledger chain.
func (h *AdminHandler) VerifyWallet(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid wallet id")
	}
	report, err := h.ledger.VerifyChain(c.UserContext(), walletID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	resp := dto.ChainReportResponse{
		WalletID: report.WalletID.String(),
		Entries:  report.Entries,
		OK:       report.OK(),
	}
	for _, b := range report.Breaks {
		resp.Breaks = append(resp.Breaks, fmt.Sprintf("%s: %s", b.EntryID, b.Reason))
	}
	if !report.Balance.Equal(report.Computed) {
		resp.Breaks = append(resp.Breaks, fmt.Sprintf("stored balance %s, replayed %s",
			money.String(report.Balance), money.String(report.Computed)))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *AdminHandler) AuditHistory(c *fiber.Ctx) error {
	entityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid entity id")
	}
	logs, err := h.audit.History(c.UserContext(), c.Params("entity"), entityID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
