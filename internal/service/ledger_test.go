package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/service"
)

func TestLedgerService_AdminAdjust(t *testing.T) {
	ctx := context.Background()
	userID := int64(1)

	t.Run("applies the delta with negative balances allowed", func(t *testing.T) {
		store := NewMockStore()
		svc := service.NewLedgerService(store, 3)

		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "10.00", 0, 2), nil)
		store.LedgerRepo.On("ApplyDelta", ctx, userID, decEq(d("-25.00")), int64(0), int64(2), true).Return(nil)
		store.LedgerRepo.On("CreateTransaction", ctx, mock.MatchedBy(func(tx *domain.LedgerTransaction) bool {
			return tx.Type == domain.TransactionTypeAdjustment && tx.Description == "chargeback CB-77"
		})).Return(nil)

		err := svc.AdminAdjust(ctx, userID, d("-25.00"), 0, "chargeback CB-77")
		assert.NoError(t, err)
		store.LedgerRepo.AssertExpectations(t)
	})

	t.Run("requires a reason", func(t *testing.T) {
		store := NewMockStore()
		svc := service.NewLedgerService(store, 3)

		err := svc.AdminAdjust(ctx, userID, d("-25.00"), 0, "")
		assert.Error(t, err)
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("retries a lost version race", func(t *testing.T) {
		store := NewMockStore()
		svc := service.NewLedgerService(store, 3)

		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "10.00", 0, 2), nil).Once()
		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "10.00", 0, 3), nil)
		store.LedgerRepo.On("ApplyDelta", ctx, userID, decEq(d("5.00")), int64(0), int64(2), true).
			Return(domain.ErrConcurrentModification)
		store.LedgerRepo.On("ApplyDelta", ctx, userID, decEq(d("5.00")), int64(0), int64(3), true).Return(nil)
		store.LedgerRepo.On("CreateTransaction", ctx, mock.AnythingOfType("*domain.LedgerTransaction")).Return(nil)

		err := svc.AdminAdjust(ctx, userID, d("5.00"), 0, "goodwill credit")
		assert.NoError(t, err)
		store.LedgerRepo.AssertExpectations(t)
	})
}
