package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	ledger *services.LedgerService
	log    *zap.Logger
}

func NewWalletHandler(ledger *services.LedgerService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, log: log}
}

func (h *WalletHandler) ListWallets(c *fiber.Ctx) error {
	wallets, err := h.ledger.ListWallets(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: wallets})
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	w, err := h.ledger.GetWallet(c.UserContext(), middleware.GetUserID(c), c.Params("kind"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// ListEntries pages the ledger of one wallet, newest first.
func (h *WalletHandler) ListEntries(c *fiber.Ctx) error {
	limit, offset := page(c)
	entries, err := h.ledger.ListEntries(c.UserContext(), middleware.GetUserID(c), c.Params("kind"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
