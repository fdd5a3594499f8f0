package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// LedgerRepository guards the per-user ledger account. ApplyDelta is the only
// mutation path for balances: it commits the delta only if the caller's
// version still matches, bumps the version, and rejects a negative resulting
// balance unless allowNegative is set (administrative adjustments).
type LedgerRepository interface {
	CreateAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error)
	GetAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error)
	ApplyDelta(ctx context.Context, userID int64, walletDelta decimal.Decimal, pointsDelta int64, expectedVersion int64, allowNegative bool) error
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
	CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	ListTransactions(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerTransaction, int32, error)
	ListTransactionsByRental(ctx context.Context, rentalID string) ([]domain.LedgerTransaction, error)
}

type RentalRepository interface {
	Create(ctx context.Context, rental *domain.Rental) error
	GetByID(ctx context.Context, id string) (*domain.Rental, error)
	// GetByIDForUpdate row-locks the rental; valid only inside ExecTx.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error)
	Update(ctx context.Context, rental *domain.Rental) error
	ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error)
	ListActivePastDue(ctx context.Context, now time.Time, limit int32) ([]domain.Rental, error)
	CountWithUnpaidDues(ctx context.Context, userID int64) (int32, error)
}

type IntentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error)
	// GetByIDForUpdate row-locks the intent; valid only inside ExecTx.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.PaymentIntent, error)
	// TransitionFromPending moves a PENDING intent to a terminal status.
	// Returns domain.ErrIntentAlreadyTerminal if the intent left PENDING in
	// the meantime, so status check and transition are one atomic step.
	TransitionFromPending(ctx context.Context, id string, to domain.IntentStatus, gatewayReference *string) error
	// ExpireStale moves every PENDING intent whose TTL elapsed to EXPIRED and
	// returns how many were swept.
	ExpireStale(ctx context.Context, now time.Time) (int32, error)
}

type PackageRepository interface {
	GetByID(ctx context.Context, id string) (*domain.RentalPackage, error)
	List(ctx context.Context) ([]domain.RentalPackage, error)
	// CheapestCovering returns the cheapest active package whose duration
	// covers the given usage, or the longest one if none does.
	CheapestCovering(ctx context.Context, minutes int64) (*domain.RentalPackage, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int64) error
}

// Store aggregates the repositories plus the transactional boundary. ExecTx
// runs fn against repositories bound to a single database transaction;
// cross-resource units (ledger debit + rental record, intent transition +
// ledger credit) commit together or not at all.
type Store interface {
	Users() UserRepository
	Ledger() LedgerRepository
	Rentals() RentalRepository
	Intents() IntentRepository
	Packages() PackageRepository
	Notifications() NotificationRepository
	ExecTx(ctx context.Context, fn func(Store) error) error
}
