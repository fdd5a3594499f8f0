package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type ledgerService struct {
	store         repository.Store
	retryAttempts int
}

func NewLedgerService(store repository.Store, retryAttempts int) LedgerService {
	return &ledgerService{store: store, retryAttempts: retryAttempts}
}

func (s *ledgerService) OpenAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	return s.store.Ledger().CreateAccount(ctx, userID)
}

func (s *ledgerService) GetAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	return s.store.Ledger().GetAccount(ctx, userID)
}

func (s *ledgerService) GetTransactions(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	return s.store.Ledger().ListTransactions(ctx, userID, page, pageSize)
}

// AdminAdjust moves balances outside the normal settlement paths, for support
// corrections and chargebacks. It may drive a balance negative; every
// adjustment leaves an ADJUSTMENT transaction carrying the operator's reason.
func (s *ledgerService) AdminAdjust(ctx context.Context, userID int64, walletDelta decimal.Decimal, pointsDelta int64, reason string) error {
	if reason == "" {
		return fmt.Errorf("adjustment reason is required")
	}
	return retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			acct, err := tx.Ledger().GetAccount(ctx, userID)
			if err != nil {
				return err
			}
			if err := tx.Ledger().ApplyDelta(ctx, userID, walletDelta, pointsDelta, acct.Version, true); err != nil {
				return err
			}
			return tx.Ledger().CreateTransaction(ctx, &domain.LedgerTransaction{
				UserID:       userID,
				WalletAmount: walletDelta,
				PointsAmount: pointsDelta,
				Type:         domain.TransactionTypeAdjustment,
				Description:  reason,
			})
		})
	})
}
