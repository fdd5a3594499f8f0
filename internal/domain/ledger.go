package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeRentalDebit    TransactionType = "RENTAL_DEBIT"
	TransactionTypeExtensionDebit TransactionType = "EXTENSION_DEBIT"
	TransactionTypeOverdueDebit   TransactionType = "OVERDUE_DEBIT"
	TransactionTypeRefundCredit   TransactionType = "REFUND_CREDIT"
	TransactionTypeTopupCredit    TransactionType = "TOPUP_CREDIT"
	TransactionTypeAdjustment     TransactionType = "ADJUSTMENT"
)

// LedgerAccount holds one user's wallet and points balances. Mutated only
// through the ledger repository's ApplyDelta, which bumps Version on every
// commit; writers carry the version they read and lose on mismatch.
type LedgerAccount struct {
	UserID        int64           `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	PointsBalance int64           `json:"points_balance"`
	Blocked       bool            `json:"blocked"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LedgerTransaction is one append-only history entry. WalletAmount and
// PointsAmount are signed: positive for credit, negative for debit.
type LedgerTransaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	WalletAmount    decimal.Decimal `json:"wallet_amount"`
	PointsAmount    int64           `json:"points_amount"`
	Type            TransactionType `json:"type"`
	RelatedRentalID *string         `json:"related_rental_id,omitempty"`
	RelatedIntentID *string         `json:"related_intent_id,omitempty"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
}
