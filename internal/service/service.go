package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/gateway"
)

type StartRentalParams struct {
	UserID       int64
	StationID    string
	PackageID    string
	PaymentModel domain.PaymentModel
}

type RentalService interface {
	Start(ctx context.Context, params StartRentalParams) (*domain.Rental, error)
	Cancel(ctx context.Context, userID int64, rentalID string) (*domain.Rental, error)
	Extend(ctx context.Context, userID int64, rentalID, additionalPackageID string) (*domain.Rental, error)
	// OnReturnEvent is the inbound callback the hardware/polling layer invokes
	// when a power bank lands in a slot. Idempotent: a duplicate event for an
	// already settled rental is a no-op.
	OnReturnEvent(ctx context.Context, rentalID, returnStationID string, now time.Time) (*domain.Rental, error)
	PayDue(ctx context.Context, userID int64, rentalID string) (*domain.Rental, error)
	// Get returns the rental plus its live overdue fee, recomputed on every
	// read rather than persisted.
	Get(ctx context.Context, userID int64, rentalID string) (*domain.Rental, decimal.Decimal, error)
	List(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, userID int64, purpose domain.IntentPurpose, gw domain.Gateway, amount decimal.Decimal, relatedRentalID *string) (*domain.PaymentIntent, *gateway.InitiateResult, error)
	CompleteIntent(ctx context.Context, intentID string, callbackData map[string]string) (*domain.SettlementResult, error)
	CancelIntent(ctx context.Context, userID int64, intentID string) error
	ExpireStaleIntents(ctx context.Context) (int32, error)
}

type LedgerService interface {
	OpenAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error)
	GetAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error)
	GetTransactions(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerTransaction, int32, error)
	// AdminAdjust applies an administrative delta; it is the only path allowed
	// to drive a balance negative.
	AdminAdjust(ctx context.Context, userID int64, walletDelta decimal.Decimal, pointsDelta int64, reason string) error
}

// Notifier is a one-way collaborator. Implementations must never let a
// delivery failure propagate into a rental or payment state change.
type Notifier interface {
	Notify(ctx context.Context, userID int64, eventKind string, payload map[string]string)
}

// StationClient is the external slot/hardware collaborator.
type StationClient interface {
	ReserveSlot(ctx context.Context, stationID string) (string, error)
	ReleaseSlot(ctx context.Context, stationID, slotID string) error
	EjectPowerBank(ctx context.Context, stationID, slotID, rentalID string) error
	IsPowerBankPresent(ctx context.Context, stationID, slotID string) (bool, error)
}

// retryOnConflict re-runs fn while it loses the optimistic version check,
// with exponential backoff, surfacing ErrConcurrentModification only after
// attempts exhaust.
func retryOnConflict(attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}
