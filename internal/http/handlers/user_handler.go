package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gton-market/settlement/internal/http/dto"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/gton-market/settlement/internal/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	userRepo *repositories.UserRepo
	ledger   *services.LedgerService
	log      *zap.Logger
}

func NewUserHandler(userRepo *repositories.UserRepo, ledger *services.LedgerService, log *zap.Logger) *UserHandler {
	return &UserHandler{userRepo: userRepo, ledger: ledger, log: log}
}

// GetMe returns the profile together with every wallet the user holds.
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	user, err := h.userRepo.GetByID(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
	}
	wallets, err := h.ledger.ListWallets(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"user":    user,
		"wallets": wallets,
	}})
}

func (h *UserHandler) Ping(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if err := h.userRepo.UpdateLastActive(c.UserContext(), userID); err != nil {
		h.log.Error("failed to update last_active", zap.Error(err))
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
