package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beniljosek/peerly/internal/models"
	"github.com/beniljosek/peerly/internal/repository"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameAccount       = errors.New("sender and recipient must differ")
	ErrInsufficientFunds = errors.New("insufficient supercoins")
	ErrAccountNotFound   = errors.New("account not found")
)

// LedgerService is the only writer of account balances. Every mutation
// runs in its own transaction and leaves a ledger entry behind.
type LedgerService struct {
	db         *pgxpool.Pool
	ledgerRepo *repository.LedgerRepository
}

func NewLedgerService(db *pgxpool.Pool, ledgerRepo *repository.LedgerRepository) *LedgerService {
	return &LedgerService{db: db, ledgerRepo: ledgerRepo}
}

func (s *LedgerService) Balance(ctx context.Context, accountID int64) (int64, error) {
	balance, err := s.ledgerRepo.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *LedgerService) Entries(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.ledgerRepo.ListByAccount(ctx, accountID, limit)
}

func (s *LedgerService) Credit(ctx context.Context, accountID int64, amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txLedgerRepo := repository.NewLedgerRepository(tx)

	if err := txLedgerRepo.AddToBalance(ctx, accountID, amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if _, err := txLedgerRepo.InsertEntry(ctx, repository.InsertEntryInput{
		ToAccountID: &accountID,
		Amount:      amount,
		EntryType:   models.EntryTypeCredit,
		Description: description,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *LedgerService) Debit(ctx context.Context, accountID int64, amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txLedgerRepo := repository.NewLedgerRepository(tx)

	balance, err := txLedgerRepo.LockBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}

	if err := txLedgerRepo.SubtractFromBalance(ctx, accountID, amount); err != nil {
		return err
	}
	if _, err := txLedgerRepo.InsertEntry(ctx, repository.InsertEntryInput{
		FromAccountID: &accountID,
		Amount:        amount,
		EntryType:     models.EntryTypeDebit,
		Description:   description,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *LedgerService) Transfer(ctx context.Context, fromID, toID int64, amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSameAccount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txLedgerRepo := repository.NewLedgerRepository(tx)

	if err := transferFunds(ctx, txLedgerRepo, fromID, toID, amount, models.EntryTypeTransfer, description); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// transferFunds moves amount from one account to the other inside the
// caller's transaction. Both rows are locked in ascending id order so two
// transfers touching the same pair in opposite directions cannot deadlock.
func transferFunds(
	ctx context.Context,
	ledgerRepo *repository.LedgerRepository,
	fromID, toID int64,
	amount int64,
	entryType string,
	description string,
) error {
	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	balances := make(map[int64]int64, 2)
	for _, id := range []int64{first, second} {
		balance, err := ledgerRepo.LockBalance(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}
		balances[id] = balance
	}

	if balances[fromID] < amount {
		return ErrInsufficientFunds
	}

	if err := ledgerRepo.SubtractFromBalance(ctx, fromID, amount); err != nil {
		return err
	}
	if err := ledgerRepo.AddToBalance(ctx, toID, amount); err != nil {
		return err
	}
	if _, err := ledgerRepo.InsertEntry(ctx, repository.InsertEntryInput{
		FromAccountID: &fromID,
		ToAccountID:   &toID,
		Amount:        amount,
		EntryType:     entryType,
		Description:   description,
	}); err != nil {
		return fmt.Errorf("recording ledger entry: %w", err)
	}

	return nil
}
