package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beniljosek/peerly/internal/config"
	"github.com/beniljosek/peerly/internal/handlers"
	"github.com/beniljosek/peerly/internal/middleware"
	"github.com/beniljosek/peerly/internal/repository"
	"github.com/beniljosek/peerly/internal/services"
)

// RegisterRoutes builds the dependency graph and mounts the API. The
// settlement service is returned so the caller can hand it to the cron
// sweeper as well.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) *services.SettlementService {
	accountRepo := repository.NewAccountRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	ledgerService := services.NewLedgerService(db, ledgerRepo)
	sessionService := services.NewSessionService(db, sessionRepo, accountRepo)
	settlementService := services.NewSettlementService(db, sessionRepo)

	authHandler := handlers.NewAuthHandler(accountRepo, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(sessionService, settlementService)
	walletHandler := handlers.NewWalletHandler(ledgerService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("/book", sessionHandler.BookSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/search", sessionHandler.SearchSessions)
	sessions.Get("/pending", sessionHandler.PendingSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id/accept", sessionHandler.AcceptSession)
	sessions.Put("/:id/reject", sessionHandler.RejectSession)
	sessions.Put("/:id/complete", sessionHandler.CompleteSession)
	sessions.Post("/:id/settle", sessionHandler.SettleSession)

	wallet := authProtected.Group("/wallet")
	wallet.Get("", walletHandler.GetBalance)
	wallet.Post("/topup", walletHandler.TopUp)
	wallet.Get("/entries", walletHandler.ListEntries)
	wallet.Post("/transfer", walletHandler.Transfer)

	return settlementService
}
