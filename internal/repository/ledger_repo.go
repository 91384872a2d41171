package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beniljosek/peerly/internal/models"
)

type InsertEntryInput struct {
	FromAccountID *int64
	ToAccountID   *int64
	Amount        int64
	EntryType     string
	Description   string
}

// LedgerRepository owns balance mutation. Every balance write is paired
// with a ledger entry inside the caller's transaction, so the entries
// table stays a complete audit trail of supercoin movement.
type LedgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	query := `SELECT balance FROM accounts WHERE id = $1`
	var balance int64
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// LockBalance reads the account balance under a row lock held until the
// surrounding transaction ends.
func (r *LedgerRepository) LockBalance(ctx context.Context, accountID int64) (int64, error) {
	query := `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`
	var balance int64
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *LedgerRepository) AddToBalance(ctx context.Context, accountID int64, amount int64) error {
	query := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, accountID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *LedgerRepository) SubtractFromBalance(ctx context.Context, accountID int64, amount int64) error {
	query := `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, accountID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *LedgerRepository) InsertEntry(ctx context.Context, input InsertEntryInput) (*models.LedgerEntry, error) {
	query := `
		INSERT INTO ledger_entries (reference, from_account_id, to_account_id, amount, entry_type, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, reference, from_account_id, to_account_id, amount, entry_type, description, created_at
	`

	var entry models.LedgerEntry
	err := r.db.QueryRow(
		ctx,
		query,
		uuid.New(),
		input.FromAccountID,
		input.ToAccountID,
		input.Amount,
		input.EntryType,
		input.Description,
	).Scan(
		&entry.ID,
		&entry.Reference,
		&entry.FromAccountID,
		&entry.ToAccountID,
		&entry.Amount,
		&entry.EntryType,
		&entry.Description,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, reference, from_account_id, to_account_id, amount, entry_type, description, created_at
		FROM ledger_entries
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Reference,
			&entry.FromAccountID,
			&entry.ToAccountID,
			&entry.Amount,
			&entry.EntryType,
			&entry.Description,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
