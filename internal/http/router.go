package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/http/handlers"
	"github.com/gton-market/settlement/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Wallet   *handlers.WalletHandler
	Payment  *handlers.PaymentHandler
	Webhook  *handlers.WebhookHandler
	Referral *handlers.ReferralHandler
	Admin    *handlers.AdminHandler
	WSHub    *handlers.WSHub
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider callbacks: authenticated by the adapter, not by JWT
	app.Post("/webhooks/:provider", h.Webhook.Handle)

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/telegram", h.Auth.TelegramAuth)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	api.Get("/providers", h.Payment.ListProviders)

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", h.User.GetMe)
	protected.Post("/me/ping", h.User.Ping)

	// Wallets
	protected.Get("/wallets", h.Wallet.ListWallets)
	protected.Get("/wallets/:kind", h.Wallet.GetWallet)
	protected.Get("/wallets/:kind/entries", h.Wallet.ListEntries)

	// Payments
	protected.Post("/payments", h.Payment.CreatePayment)
	protected.Get("/payments", h.Payment.ListPayments)
	protected.Get("/payments/:id", h.Payment.GetPayment)

	// Referrals
	protected.Post("/referrals/attach", h.Referral.Attach)
	protected.Get("/referrals/summary", h.Referral.Summary)
	protected.Get("/referrals/commissions", h.Referral.Commissions)
	protected.Get("/partner", h.Referral.Partner)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg, log))
	admin.Post("/wallets/adjust", h.Admin.AdjustWallet)
	admin.Get("/wallets/:id/verify", h.Admin.VerifyWallet)
	admin.Post("/payments/:id/confirm", h.Admin.ConfirmPayment)
	admin.Post("/partners", h.Admin.PromotePartner)
	admin.Put("/partners/:userId/status", h.Admin.SetPartnerStatus)
	admin.Get("/audit/:entity/:id", h.Admin.AuditHistory)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WSHub.HandleWS))
}
