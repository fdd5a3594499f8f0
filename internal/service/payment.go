package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/gateway"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

type paymentService struct {
	store          repository.Store
	gateways       *gateway.Registry
	notifier       Notifier
	currency       string
	intentTTL      time.Duration
	verifyAttempts int
	verifyBackoff  time.Duration
	retryAttempts  int
}

func NewPaymentService(
	store repository.Store,
	gateways *gateway.Registry,
	notifier Notifier,
	currency string,
	intentTTL time.Duration,
	verifyAttempts int,
	verifyBackoff time.Duration,
	retryAttempts int,
) PaymentService {
	return &paymentService{
		store:          store,
		gateways:       gateways,
		notifier:       notifier,
		currency:       currency,
		intentTTL:      intentTTL,
		verifyAttempts: verifyAttempts,
		verifyBackoff:  verifyBackoff,
		retryAttempts:  retryAttempts,
	}
}

// CreateIntent records the intent before contacting the provider, so a crash
// mid-initiate leaves a PENDING row the expiry sweep can reap rather than an
// orphaned provider session with no local trace.
//
// Blocked accounts may still create intents: topping up is how they clear
// their dues.
func (s *paymentService) CreateIntent(
	ctx context.Context,
	userID int64,
	purpose domain.IntentPurpose,
	gw domain.Gateway,
	amount decimal.Decimal,
	relatedRentalID *string,
) (*domain.PaymentIntent, *gateway.InitiateResult, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("intent amount must be positive, got %s", amount)
	}
	client, err := s.gateways.Get(gw)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.Ledger().GetAccount(ctx, userID); err != nil {
		return nil, nil, fmt.Errorf("load ledger account: %w", err)
	}

	now := time.Now().UTC()
	intent := &domain.PaymentIntent{
		ID:              uuid.NewString(),
		UserID:          userID,
		Purpose:         purpose,
		Amount:          amount,
		Currency:        s.currency,
		Gateway:         gw,
		Status:          domain.IntentStatusPending,
		ExpiresAt:       now.Add(s.intentTTL),
		RelatedRentalID: relatedRentalID,
	}
	if err := s.store.Intents().Create(ctx, intent); err != nil {
		return nil, nil, fmt.Errorf("create payment intent: %w", err)
	}

	initiate, err := client.Initiate(ctx, intent.ID, amount, s.currency)
	if err != nil {
		if failErr := s.store.Intents().TransitionFromPending(ctx, intent.ID, domain.IntentStatusFailed, nil); failErr != nil {
			logger.Error("Failed to mark intent failed after initiate error",
				"intent_id", intent.ID, "error", failErr)
		}
		return nil, nil, fmt.Errorf("initiate %s payment: %w", gw, err)
	}
	return intent, initiate, nil
}

// CompleteIntent is the idempotent settlement path. It verifies the payment
// with the provider first, outside any transaction, then applies the wallet
// credit and the status transition in one transaction keyed on the intent ID.
// Replays of a completed intent return the original result with
// AlreadyApplied set instead of crediting twice.
func (s *paymentService) CompleteIntent(ctx context.Context, intentID string, callbackData map[string]string) (*domain.SettlementResult, error) {
	intent, err := s.store.Intents().GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.IsTerminal() {
		return s.terminalResult(intent)
	}

	now := time.Now().UTC()
	if now.After(intent.ExpiresAt) {
		// The expiry transition must land even though the completion fails,
		// so it runs before the error returns.
		if expireErr := s.store.Intents().TransitionFromPending(ctx, intentID, domain.IntentStatusExpired, nil); expireErr != nil &&
			!errors.Is(expireErr, domain.ErrIntentAlreadyTerminal) {
			return nil, expireErr
		}
		return nil, domain.ErrIntentExpired
	}

	client, err := s.gateways.Get(intent.Gateway)
	if err != nil {
		return nil, err
	}
	verify, err := s.verifyWithRetry(ctx, client, intentID, callbackData)
	if err != nil {
		// Retries exhausted. The intent must not linger PENDING, the user
		// retries with a fresh intent.
		if failErr := s.markFailed(ctx, intentID); failErr != nil {
			logger.Error("Failed to mark intent failed after verify retries exhausted",
				"intent_id", intentID, "error", failErr)
		}
		return nil, fmt.Errorf("verify payment with %s: %w", intent.Gateway, err)
	}
	if !verify.Success {
		if failErr := s.markFailed(ctx, intentID); failErr != nil {
			return nil, failErr
		}
		return nil, domain.ErrGatewayDeclined
	}
	if !verify.VerifiedAmount.Equal(intent.Amount) {
		logger.Warn("Verified amount does not match intent",
			"intent_id", intentID, "intent_amount", intent.Amount.String(),
			"verified_amount", verify.VerifiedAmount.String())
		if failErr := s.markFailed(ctx, intentID); failErr != nil {
			return nil, failErr
		}
		return nil, domain.ErrVerificationMismatch
	}

	var result *domain.SettlementResult
	var expired bool
	err = retryOnConflict(s.retryAttempts, func() error {
		expired = false
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			locked, txErr := tx.Intents().GetByIDForUpdate(ctx, intentID)
			if txErr != nil {
				return txErr
			}
			// A concurrent completion may have won the row lock race.
			if locked.IsTerminal() {
				r, resErr := s.terminalResult(locked)
				if resErr != nil {
					return resErr
				}
				result = r
				return nil
			}
			// Verification plus its retry backoff can outlive the TTL.
			// Re-check under the row lock so a slow callback never completes
			// an expired intent.
			if time.Now().UTC().After(locked.ExpiresAt) {
				if txErr := tx.Intents().TransitionFromPending(ctx, intentID, domain.IntentStatusExpired, nil); txErr != nil {
					return txErr
				}
				expired = true
				return nil
			}

			if txErr := tx.Intents().TransitionFromPending(ctx, intentID, domain.IntentStatusCompleted, &verify.GatewayReference); txErr != nil {
				return txErr
			}
			acct, txErr := tx.Ledger().GetAccount(ctx, locked.UserID)
			if txErr != nil {
				return txErr
			}
			if txErr := tx.Ledger().ApplyDelta(ctx, locked.UserID, locked.Amount, 0, acct.Version, false); txErr != nil {
				return txErr
			}
			if txErr := tx.Ledger().CreateTransaction(ctx, &domain.LedgerTransaction{
				UserID:          locked.UserID,
				WalletAmount:    locked.Amount,
				PointsAmount:    0,
				Type:            domain.TransactionTypeTopupCredit,
				RelatedRentalID: locked.RelatedRentalID,
				RelatedIntentID: &locked.ID,
				Description:     fmt.Sprintf("Wallet credit via %s", locked.Gateway),
			}); txErr != nil {
				return txErr
			}
			result = &domain.SettlementResult{
				IntentID:         intentID,
				Status:           domain.IntentStatusCompleted,
				Amount:           locked.Amount,
				GatewayReference: verify.GatewayReference,
				AlreadyApplied:   false,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, domain.ErrIntentExpired
	}

	if !result.AlreadyApplied {
		s.notifier.Notify(ctx, intent.UserID, "PAYMENT_COMPLETED", map[string]string{
			"intent_id": intentID,
			"amount":    intent.Amount.StringFixed(2),
		})
	}
	return result, nil
}

// CancelIntent lets the user abandon a pending checkout.
func (s *paymentService) CancelIntent(ctx context.Context, userID int64, intentID string) error {
	intent, err := s.store.Intents().GetByID(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.UserID != userID {
		return errUnauthorized
	}
	return s.store.Intents().TransitionFromPending(ctx, intentID, domain.IntentStatusCancelled, nil)
}

func (s *paymentService) ExpireStaleIntents(ctx context.Context) (int32, error) {
	return s.store.Intents().ExpireStale(ctx, time.Now().UTC())
}

// terminalResult maps an already-terminal intent to the caller-visible
// outcome. Only COMPLETED replays return a result; every other terminal state
// is an error.
func (s *paymentService) terminalResult(intent *domain.PaymentIntent) (*domain.SettlementResult, error) {
	switch intent.Status {
	case domain.IntentStatusCompleted:
		ref := ""
		if intent.GatewayReference != nil {
			ref = *intent.GatewayReference
		}
		return &domain.SettlementResult{
			IntentID:         intent.ID,
			Status:           domain.IntentStatusCompleted,
			Amount:           intent.Amount,
			GatewayReference: ref,
			AlreadyApplied:   true,
		}, nil
	case domain.IntentStatusExpired:
		return nil, domain.ErrIntentExpired
	default:
		return nil, fmt.Errorf("%w: intent %s is %s", domain.ErrIntentAlreadyTerminal, intent.ID, intent.Status)
	}
}

func (s *paymentService) markFailed(ctx context.Context, intentID string) error {
	err := s.store.Intents().TransitionFromPending(ctx, intentID, domain.IntentStatusFailed, nil)
	if err != nil && !errors.Is(err, domain.ErrIntentAlreadyTerminal) {
		return err
	}
	return nil
}

// verifyWithRetry retries transport-level verify failures with exponential
// backoff. A definitive provider answer, success or decline, stops the loop.
func (s *paymentService) verifyWithRetry(ctx context.Context, client gateway.Client, intentID string, callbackData map[string]string) (*gateway.VerifyResult, error) {
	attempts := s.verifyAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.verifyBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		result, err := client.Verify(ctx, intentID, callbackData)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.Warn("Gateway verify attempt failed",
			"intent_id", intentID, "attempt", i+1, "error", err)
	}
	return nil, lastErr
}
