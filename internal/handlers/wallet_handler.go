package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/services"
)

type WalletHandler struct {
	ledger walletLedgerService
}

type walletLedgerService interface {
	Balance(ctx context.Context, accountID int64) (int64, error)
	Entries(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error)
	Credit(ctx context.Context, accountID int64, amount int64, description string) error
	Transfer(ctx context.Context, fromID, toID int64, amount int64, description string) error
}

func NewWalletHandler(ledger *services.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

type topUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type transferRequest struct {
	ToAccountID int64  `json:"to_account_id" validate:"required,gt=0"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description"`
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	balance, err := h.ledger.Balance(c.Context(), accountID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"balance": balance})
}

func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.ledger.Credit(c.Context(), accountID, req.Amount, "wallet top-up"); err != nil {
		return mapLedgerError(c, err)
	}

	balance, err := h.ledger.Balance(c.Context(), accountID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"balance": balance})
}

func (h *WalletHandler) ListEntries(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
	}

	entries, err := h.ledger.Entries(c.Context(), accountID, limit)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *WalletHandler) Transfer(c *fiber.Ctx) error {
	accountID, err := parseAccountID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "supercoin transfer"
	}

	if err := h.ledger.Transfer(c.Context(), accountID, req.ToAccountID, req.Amount, description); err != nil {
		return mapLedgerError(c, err)
	}

	balance, err := h.ledger.Balance(c.Context(), accountID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"balance": balance})
}

func mapLedgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrSameAccount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInsufficientFunds):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAccountNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Account not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process wallet request"})
	}
}
