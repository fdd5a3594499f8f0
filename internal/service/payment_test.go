package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/gateway"
	"powerbank-rental-backend/internal/service"
)

func newPaymentService(store *MockStore, client *MockGatewayClient) service.PaymentService {
	return service.NewPaymentService(
		store,
		gateway.NewRegistry(client),
		NopNotifier{},
		"NPR",
		15*time.Minute,
		2,
		time.Millisecond,
		3,
	)
}

func pendingIntent(amount string, expiresAt time.Time) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:        "in-1",
		UserID:    1,
		Purpose:   domain.IntentPurposeWalletTopup,
		Amount:    d(amount),
		Currency:  "NPR",
		Gateway:   domain.GatewayKhalti,
		Status:    domain.IntentStatusPending,
		ExpiresAt: expiresAt,
	}
}

func TestPaymentService_CreateIntent(t *testing.T) {
	ctx := context.Background()
	userID := int64(1)

	t.Run("records the intent before initiating", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "0.00", 0, 1), nil)
		store.IntentRepo.On("Create", ctx, mock.MatchedBy(func(in *domain.PaymentIntent) bool {
			return in.Status == domain.IntentStatusPending && in.Amount.Equal(d("500.00"))
		})).Return(nil)
		client.On("Initiate", ctx, mock.AnythingOfType("string"), decEq(d("500.00")), "NPR").
			Return(&gateway.InitiateResult{RedirectURL: "https://pay.example/redirect"}, nil)

		intent, initiate, err := svc.CreateIntent(ctx, userID, domain.IntentPurposeWalletTopup, domain.GatewayKhalti, d("500.00"), nil)
		assert.NoError(t, err)
		assert.NotEmpty(t, intent.ID)
		assert.Equal(t, domain.IntentStatusPending, intent.Status)
		assert.Equal(t, "https://pay.example/redirect", initiate.RedirectURL)
		assert.True(t, intent.ExpiresAt.After(time.Now().UTC().Add(14*time.Minute)))
	})

	t.Run("initiate failure marks the intent failed", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "0.00", 0, 1), nil)
		store.IntentRepo.On("Create", ctx, mock.AnythingOfType("*domain.PaymentIntent")).Return(nil)
		client.On("Initiate", ctx, mock.AnythingOfType("string"), decEq(d("500.00")), "NPR").
			Return(nil, errors.New("provider timeout"))
		store.IntentRepo.On("TransitionFromPending", ctx, mock.AnythingOfType("string"), domain.IntentStatusFailed, (*string)(nil)).
			Return(nil)

		_, _, err := svc.CreateIntent(ctx, userID, domain.IntentPurposeWalletTopup, domain.GatewayKhalti, d("500.00"), nil)
		assert.Error(t, err)
		store.IntentRepo.AssertCalled(t, "TransitionFromPending",
			ctx, mock.AnythingOfType("string"), domain.IntentStatusFailed, (*string)(nil))
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		_, _, err := svc.CreateIntent(ctx, userID, domain.IntentPurposeWalletTopup, domain.GatewayKhalti, decimal.Zero, nil)
		assert.Error(t, err)
	})

	t.Run("rejects an unconfigured gateway", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		_, _, err := svc.CreateIntent(ctx, userID, domain.IntentPurposeWalletTopup, domain.GatewayEsewa, d("500.00"), nil)
		assert.ErrorIs(t, err, domain.ErrUnknownGateway)
	})
}

func TestPaymentService_CompleteIntent(t *testing.T) {
	ctx := context.Background()
	userID := int64(1)
	callback := map[string]string{"pidx": "tok-1"}
	future := time.Now().UTC().Add(10 * time.Minute)

	t.Run("verified payment credits the wallet once", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		intent := pendingIntent("500.00", future)
		store.IntentRepo.On("GetByID", ctx, "in-1").Return(intent, nil)
		client.On("Verify", ctx, "in-1", callback).
			Return(&gateway.VerifyResult{Success: true, GatewayReference: "ref-9", VerifiedAmount: d("500.00")}, nil)
		store.IntentRepo.On("GetByIDForUpdate", ctx, "in-1").Return(intent, nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusCompleted, mock.AnythingOfType("*string")).
			Return(nil)
		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "20.00", 0, 4), nil)
		store.LedgerRepo.On("ApplyDelta", ctx, userID, decEq(d("500.00")), int64(0), int64(4), false).Return(nil)
		store.LedgerRepo.On("CreateTransaction", ctx, mock.MatchedBy(func(tx *domain.LedgerTransaction) bool {
			return tx.Type == domain.TransactionTypeTopupCredit && tx.RelatedIntentID != nil
		})).Return(nil)

		result, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.NoError(t, err)
		assert.False(t, result.AlreadyApplied)
		assert.Equal(t, domain.IntentStatusCompleted, result.Status)
		assert.Equal(t, "ref-9", result.GatewayReference)
		assert.True(t, result.Amount.Equal(d("500.00")))
		store.LedgerRepo.AssertExpectations(t)
	})

	t.Run("replay of a completed intent applies nothing", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		ref := "ref-9"
		done := pendingIntent("500.00", future)
		done.Status = domain.IntentStatusCompleted
		done.GatewayReference = &ref
		store.IntentRepo.On("GetByID", ctx, "in-1").Return(done, nil)

		result, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.NoError(t, err)
		assert.True(t, result.AlreadyApplied)
		assert.Equal(t, "ref-9", result.GatewayReference)
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		client.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired intent is swept and rejected", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		stale := pendingIntent("500.00", time.Now().UTC().Add(-time.Minute))
		store.IntentRepo.On("GetByID", ctx, "in-1").Return(stale, nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusExpired, (*string)(nil)).
			Return(nil)

		_, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.ErrorIs(t, err, domain.ErrIntentExpired)
		store.IntentRepo.AssertCalled(t, "TransitionFromPending", ctx, "in-1", domain.IntentStatusExpired, (*string)(nil))
	})

	t.Run("amount mismatch fails the intent", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		client.On("Verify", ctx, "in-1", callback).
			Return(&gateway.VerifyResult{Success: true, GatewayReference: "ref-9", VerifiedAmount: d("400.00")}, nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusFailed, (*string)(nil)).
			Return(nil)

		_, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.ErrorIs(t, err, domain.ErrVerificationMismatch)
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider decline fails the intent", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		client.On("Verify", ctx, "in-1", callback).
			Return(&gateway.VerifyResult{Success: false}, nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusFailed, (*string)(nil)).
			Return(nil)

		_, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
	})

	t.Run("verify retries transport errors before giving up", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		client.On("Verify", ctx, "in-1", callback).Return(nil, errors.New("connection reset")).Once()
		client.On("Verify", ctx, "in-1", callback).
			Return(&gateway.VerifyResult{Success: true, GatewayReference: "ref-9", VerifiedAmount: d("500.00")}, nil)
		store.IntentRepo.On("GetByIDForUpdate", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusCompleted, mock.AnythingOfType("*string")).
			Return(nil)
		store.LedgerRepo.On("GetAccount", ctx, userID).Return(account(userID, "20.00", 0, 4), nil)
		store.LedgerRepo.On("ApplyDelta", ctx, userID, decEq(d("500.00")), int64(0), int64(4), false).Return(nil)
		store.LedgerRepo.On("CreateTransaction", ctx, mock.AnythingOfType("*domain.LedgerTransaction")).Return(nil)

		result, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.NoError(t, err)
		assert.False(t, result.AlreadyApplied)
		client.AssertNumberOfCalls(t, "Verify", 2)
	})

	t.Run("TTL elapsing during verification cannot complete the intent", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		// The intent is alive when verification starts but the provider
		// answers after the TTL has run out.
		closing := pendingIntent("500.00", time.Now().UTC().Add(30*time.Millisecond))
		store.IntentRepo.On("GetByID", ctx, "in-1").Return(closing, nil)
		client.On("Verify", ctx, "in-1", callback).
			Run(func(mock.Arguments) { time.Sleep(80 * time.Millisecond) }).
			Return(&gateway.VerifyResult{Success: true, GatewayReference: "ref-9", VerifiedAmount: d("500.00")}, nil)
		store.IntentRepo.On("GetByIDForUpdate", ctx, "in-1").Return(closing, nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusExpired, (*string)(nil)).
			Return(nil)

		_, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.ErrorIs(t, err, domain.ErrIntentExpired)
		store.IntentRepo.AssertCalled(t, "TransitionFromPending", ctx, "in-1", domain.IntentStatusExpired, (*string)(nil))
		store.IntentRepo.AssertNotCalled(t, "TransitionFromPending",
			ctx, "in-1", domain.IntentStatusCompleted, mock.Anything)
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("exhausted verify retries mark the intent failed", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		client.On("Verify", ctx, "in-1", callback).Return(nil, errors.New("connection reset"))
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusFailed, (*string)(nil)).
			Return(nil)

		_, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.Error(t, err)
		client.AssertNumberOfCalls(t, "Verify", 2)
		store.IntentRepo.AssertCalled(t, "TransitionFromPending", ctx, "in-1", domain.IntentStatusFailed, (*string)(nil))
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("losing the row lock race returns the winner's result", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", future), nil)
		client.On("Verify", ctx, "in-1", callback).
			Return(&gateway.VerifyResult{Success: true, GatewayReference: "ref-9", VerifiedAmount: d("500.00")}, nil)

		ref := "ref-9"
		won := pendingIntent("500.00", future)
		won.Status = domain.IntentStatusCompleted
		won.GatewayReference = &ref
		store.IntentRepo.On("GetByIDForUpdate", ctx, "in-1").Return(won, nil)

		result, err := svc.CompleteIntent(ctx, "in-1", callback)
		assert.NoError(t, err)
		assert.True(t, result.AlreadyApplied)
		store.LedgerRepo.AssertNotCalled(t, "ApplyDelta",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_CancelIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels a pending intent", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", time.Now().Add(time.Minute)), nil)
		store.IntentRepo.On("TransitionFromPending", ctx, "in-1", domain.IntentStatusCancelled, (*string)(nil)).
			Return(nil)

		err := svc.CancelIntent(ctx, 1, "in-1")
		assert.NoError(t, err)
	})

	t.Run("rejects another user's intent", func(t *testing.T) {
		store := NewMockStore()
		client := &MockGatewayClient{name: domain.GatewayKhalti}
		svc := newPaymentService(store, client)

		store.IntentRepo.On("GetByID", ctx, "in-1").Return(pendingIntent("500.00", time.Now().Add(time.Minute)), nil)

		err := svc.CancelIntent(ctx, 99, "in-1")
		assert.Error(t, err)
		store.IntentRepo.AssertNotCalled(t, "TransitionFromPending",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPaymentService_ExpireStaleIntents(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	client := &MockGatewayClient{name: domain.GatewayKhalti}
	svc := newPaymentService(store, client)

	store.IntentRepo.On("ExpireStale", ctx, mock.AnythingOfType("time.Time")).Return(int32(4), nil)

	swept, err := svc.ExpireStaleIntents(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(4), swept)
}
