package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntryTypeCredit     = "credit"
	EntryTypeDebit      = "debit"
	EntryTypeTransfer   = "transfer"
	EntryTypeSettlement = "settlement"
)

// LedgerEntry records a single supercoin movement. Credits have only a
// destination, debits only a source; transfers and settlements have both.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	Reference     uuid.UUID `json:"reference"`
	FromAccountID *int64    `json:"from_account_id"`
	ToAccountID   *int64    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	EntryType     string    `json:"entry_type"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}
