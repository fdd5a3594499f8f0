package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/billing"
	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

var errUnauthorized = errors.New("unauthorized")

type rentalService struct {
	store         repository.Store
	stations      StationClient
	notifier      Notifier
	policy        billing.Policy
	lateFee       billing.LateFeeConfig
	retryAttempts int
}

func NewRentalService(
	store repository.Store,
	stations StationClient,
	notifier Notifier,
	policy billing.Policy,
	lateFee billing.LateFeeConfig,
	retryAttempts int,
) RentalService {
	return &rentalService{
		store:         store,
		stations:      stations,
		notifier:      notifier,
		policy:        policy,
		lateFee:       lateFee,
		retryAttempts: retryAttempts,
	}
}

// Start drives a rental from request to Active. The ledger debit and the
// rental record commit in one transaction; the hardware eject happens after,
// with a compensating refund if it fails, so a debited-but-unreleased state
// cannot survive.
func (s *rentalService) Start(ctx context.Context, p StartRentalParams) (*domain.Rental, error) {
	acct, err := s.store.Ledger().GetAccount(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load ledger account: %w", err)
	}
	if acct.Blocked {
		return nil, domain.ErrAccountBlocked
	}
	dues, err := s.store.Rentals().CountWithUnpaidDues(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("check unpaid dues: %w", err)
	}
	if dues > 0 {
		return nil, domain.ErrAccountBlocked
	}

	pkg, err := s.store.Packages().GetByID(ctx, p.PackageID)
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", p.PackageID, err)
	}

	model := p.PaymentModel
	if model == "" {
		model = domain.PaymentModelPrepaid
	}
	prepaid := model == domain.PaymentModelPrepaid

	// Fail fast on an obviously insufficient balance before touching hardware.
	// No gateway intent is created on the caller's behalf; they top up
	// explicitly and retry.
	if prepaid {
		plan, planErr := billing.CalculatePlan(pkg.Price, acct.PointsBalance, acct.WalletBalance, s.policy)
		if planErr != nil {
			return nil, planErr
		}
		if !plan.IsSufficient {
			return nil, &domain.InsufficientFundsError{Plan: plan}
		}
	}

	slotID, err := s.stations.ReserveSlot(ctx, p.StationID)
	if err != nil {
		if errors.Is(err, domain.ErrNoAvailableSlot) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot at station %s: %w", p.StationID, err)
	}

	now := time.Now().UTC()
	rental := &domain.Rental{
		ID:                     uuid.NewString(),
		UserID:                 p.UserID,
		OriginStationID:        p.StationID,
		SlotID:                 slotID,
		PackageID:              pkg.ID,
		PackagePrice:           pkg.Price,
		PackageDurationMinutes: pkg.DurationMinutes,
		PaymentModel:           model,
		Status:                 domain.RentalStatusPending,
		StartedAt:              now,
		DueAt:                  now.Add(time.Duration(pkg.DurationMinutes) * time.Minute),
		AmountPaid:             decimal.Zero,
		OverdueAmount:          decimal.Zero,
	}

	err = retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			if prepaid {
				plan, debitErr := s.debit(ctx, tx, p.UserID, pkg.Price, domain.TransactionTypeRentalDebit, &rental.ID, nil,
					fmt.Sprintf("Rental of package %s", pkg.ID))
				if debitErr != nil {
					return debitErr
				}
				rental.AmountPaid = plan.RequiredAmount
			}
			return tx.Rentals().Create(ctx, rental)
		})
	})
	if err != nil {
		if releaseErr := s.stations.ReleaseSlot(ctx, p.StationID, slotID); releaseErr != nil {
			logger.Error("Failed to release slot after aborted start",
				"station_id", p.StationID, "slot_id", slotID, "error", releaseErr)
		}
		return nil, err
	}

	if err := s.stations.EjectPowerBank(ctx, p.StationID, slotID, rental.ID); err != nil {
		s.rollbackStart(ctx, rental)
		if releaseErr := s.stations.ReleaseSlot(ctx, p.StationID, slotID); releaseErr != nil {
			logger.Error("Failed to release slot after failed eject",
				"station_id", p.StationID, "slot_id", slotID, "error", releaseErr)
		}
		return nil, fmt.Errorf("eject power bank: %w", err)
	}

	rental.Status = domain.RentalStatusActive
	if err := s.activateWithRetry(ctx, rental); err != nil {
		// The unit is already in the user's hands and a PENDING rental can
		// never settle on return, so reverse the debit and void it rather
		// than strand it.
		s.rollbackStart(ctx, rental)
		if releaseErr := s.stations.ReleaseSlot(ctx, p.StationID, slotID); releaseErr != nil {
			logger.Error("Failed to release slot after failed activation",
				"station_id", p.StationID, "slot_id", slotID, "error", releaseErr)
		}
		return nil, fmt.Errorf("activate rental %s: %w", rental.ID, err)
	}

	s.notifier.Notify(ctx, p.UserID, "RENTAL_STARTED", map[string]string{
		"rental_id": rental.ID,
		"due_at":    rental.DueAt.Format(time.RFC3339),
	})
	return rental, nil
}

// activateWithRetry commits the Pending to Active transition, retrying
// transient write failures so a successful eject is not stranded by a single
// flaky update.
func (s *rentalService) activateWithRetry(ctx context.Context, rental *domain.Rental) error {
	attempts := s.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if err = s.store.Rentals().Update(ctx, rental); err == nil {
			return nil
		}
		logger.Warn("Rental activation attempt failed",
			"rental_id", rental.ID, "attempt", i+1, "error", err)
	}
	return err
}

// rollbackStart reverses the debit and voids the rental after a hardware
// failure. Nothing was released to the user, so the refund is unconditional.
func (s *rentalService) rollbackStart(ctx context.Context, rental *domain.Rental) {
	err := retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			if rental.AmountPaid.IsPositive() {
				if err := s.refundRentalDebits(ctx, tx, rental, "Refund after hardware failure"); err != nil {
					return err
				}
			}
			now := time.Now().UTC()
			rental.Status = domain.RentalStatusCancelled
			rental.EndedAt = &now
			rental.AmountPaid = decimal.Zero
			return tx.Rentals().Update(ctx, rental)
		})
	})
	if err != nil {
		logger.Error("Failed to roll back rental after hardware failure",
			"rental_id", rental.ID, "user_id", rental.UserID, "error", err)
	}
}

// Cancel voids an active rental. The precondition is hardware-verified: the
// power bank must physically sit in its slot, not merely be recently rented.
func (s *rentalService) Cancel(ctx context.Context, userID int64, rentalID string) (*domain.Rental, error) {
	rental, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.UserID != userID {
		return nil, errUnauthorized
	}
	if rental.Status != domain.RentalStatusActive {
		return nil, fmt.Errorf("rental %s is not active", rentalID)
	}

	present, err := s.stations.IsPowerBankPresent(ctx, rental.OriginStationID, rental.SlotID)
	if err != nil {
		return nil, fmt.Errorf("check power bank presence: %w", err)
	}
	if !present {
		return nil, domain.ErrReturnRequiredBeforeCancel
	}

	err = retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			r, txErr := tx.Rentals().GetByIDForUpdate(ctx, rentalID)
			if txErr != nil {
				return txErr
			}
			if r.Status != domain.RentalStatusActive {
				return fmt.Errorf("rental %s is not active", rentalID)
			}
			if r.AmountPaid.IsPositive() {
				if refundErr := s.refundRentalDebits(ctx, tx, r, "Refund for cancelled rental"); refundErr != nil {
					return refundErr
				}
			}
			now := time.Now().UTC()
			r.Status = domain.RentalStatusCancelled
			r.EndedAt = &now
			r.AmountPaid = decimal.Zero
			rental = r
			return tx.Rentals().Update(ctx, r)
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, userID, "RENTAL_CANCELLED", map[string]string{"rental_id": rentalID})
	return rental, nil
}

// Extend pushes DueAt out by another package's duration. Prepaid rentals pay
// the incremental amount in the same transaction; insufficiency leaves DueAt
// untouched.
func (s *rentalService) Extend(ctx context.Context, userID int64, rentalID, additionalPackageID string) (*domain.Rental, error) {
	pkg, err := s.store.Packages().GetByID(ctx, additionalPackageID)
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", additionalPackageID, err)
	}

	var rental *domain.Rental
	err = retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			r, txErr := tx.Rentals().GetByIDForUpdate(ctx, rentalID)
			if txErr != nil {
				return txErr
			}
			if r.UserID != userID {
				return errUnauthorized
			}
			if r.Status != domain.RentalStatusActive {
				return fmt.Errorf("rental %s is not active", rentalID)
			}
			if r.PaymentModel == domain.PaymentModelPrepaid {
				plan, debitErr := s.debit(ctx, tx, userID, pkg.Price, domain.TransactionTypeExtensionDebit, &r.ID, nil,
					fmt.Sprintf("Extension by package %s", pkg.ID))
				if debitErr != nil {
					return debitErr
				}
				r.AmountPaid = r.AmountPaid.Add(plan.RequiredAmount)
			}
			r.DueAt = r.DueAt.Add(time.Duration(pkg.DurationMinutes) * time.Minute)
			rental = r
			return tx.Rentals().Update(ctx, r)
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, userID, "RENTAL_EXTENDED", map[string]string{
		"rental_id": rentalID,
		"due_at":    rental.DueAt.Format(time.RFC3339),
	})
	return rental, nil
}

// OnReturnEvent settles a returned power bank. Prepaid rentals settle any
// overdue fee from balances on the spot when they can; anything unpayable now
// becomes outstanding dues and blocks the account until PayDue succeeds.
func (s *rentalService) OnReturnEvent(ctx context.Context, rentalID, returnStationID string, now time.Time) (*domain.Rental, error) {
	var rental *domain.Rental
	var blocked bool

	err := retryOnConflict(s.retryAttempts, func() error {
		blocked = false
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			r, txErr := tx.Rentals().GetByIDForUpdate(ctx, rentalID)
			if txErr != nil {
				return txErr
			}
			// Duplicate hardware event for a settled rental: no-op.
			if r.IsTerminal() {
				rental = r
				return nil
			}
			// PENDING is accepted as a recovery path. If the process died
			// between the debit commit and activation, the return event is
			// the only signal left that can settle the rental.
			if r.Status != domain.RentalStatusActive && r.Status != domain.RentalStatusPending {
				return fmt.Errorf("rental %s is not active", rentalID)
			}

			r.ReturnStationID = &returnStationID
			endedAt := now.UTC()
			r.EndedAt = &endedAt
			r.IsReturnedOnTime = !now.After(r.DueAt)

			due := billing.CalculateOverdueFee(r.DueAt, now, s.lateFee)
			if r.PaymentModel == domain.PaymentModelPostpaid {
				usageCost, costErr := s.postpaidUsageCost(ctx, tx, r, now)
				if costErr != nil {
					return costErr
				}
				due = due.Add(usageCost)
			}

			if due.IsZero() {
				r.Status = domain.RentalStatusCompleted
				r.OverdueAmount = decimal.Zero
				rental = r
				return tx.Rentals().Update(ctx, r)
			}

			acct, acctErr := tx.Ledger().GetAccount(ctx, r.UserID)
			if acctErr != nil {
				return acctErr
			}
			plan, planErr := billing.CalculatePlan(due, acct.PointsBalance, acct.WalletBalance, s.policy)
			if planErr != nil {
				return planErr
			}
			if plan.IsSufficient {
				txType := domain.TransactionTypeOverdueDebit
				if r.PaymentModel == domain.PaymentModelPostpaid {
					txType = domain.TransactionTypeRentalDebit
				}
				if _, debitErr := s.debit(ctx, tx, r.UserID, due, txType, &r.ID, nil,
					"Settlement on return"); debitErr != nil {
					return debitErr
				}
				r.AmountPaid = r.AmountPaid.Add(due)
				r.OverdueAmount = decimal.Zero
				r.Status = domain.RentalStatusCompleted
				rental = r
				return tx.Rentals().Update(ctx, r)
			}

			// Settlement deferred: record the dues and block the account.
			r.OverdueAmount = due
			r.Status = domain.RentalStatusCompleted
			if blockErr := tx.Ledger().SetBlocked(ctx, r.UserID, true); blockErr != nil {
				return blockErr
			}
			blocked = true
			rental = r
			return tx.Rentals().Update(ctx, r)
		})
	})
	if err != nil {
		return nil, err
	}

	if blocked {
		s.notifier.Notify(ctx, rental.UserID, "DUES_OUTSTANDING", map[string]string{
			"rental_id": rental.ID,
			"amount":    rental.OverdueAmount.StringFixed(2),
		})
	} else {
		s.notifier.Notify(ctx, rental.UserID, "RENTAL_COMPLETED", map[string]string{"rental_id": rental.ID})
	}
	return rental, nil
}

// PayDue settles the outstanding amount on a returned rental and lifts the
// account block once no rental carries dues anymore.
func (s *rentalService) PayDue(ctx context.Context, userID int64, rentalID string) (*domain.Rental, error) {
	var rental *domain.Rental
	err := retryOnConflict(s.retryAttempts, func() error {
		return s.store.ExecTx(ctx, func(tx repository.Store) error {
			r, txErr := tx.Rentals().GetByIDForUpdate(ctx, rentalID)
			if txErr != nil {
				return txErr
			}
			if r.UserID != userID {
				return errUnauthorized
			}
			if !r.HasUnpaidDues() {
				rental = r
				return nil
			}

			due := r.OverdueAmount
			if _, debitErr := s.debit(ctx, tx, userID, due, domain.TransactionTypeOverdueDebit, &r.ID, nil,
				"Due payment"); debitErr != nil {
				return debitErr
			}
			r.AmountPaid = r.AmountPaid.Add(due)
			r.OverdueAmount = decimal.Zero
			r.Status = domain.RentalStatusCompleted
			if updateErr := tx.Rentals().Update(ctx, r); updateErr != nil {
				return updateErr
			}

			remaining, countErr := tx.Rentals().CountWithUnpaidDues(ctx, userID)
			if countErr != nil {
				return countErr
			}
			if remaining == 0 {
				if unblockErr := tx.Ledger().SetBlocked(ctx, userID, false); unblockErr != nil {
					return unblockErr
				}
			}
			rental = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, userID, "DUES_SETTLED", map[string]string{"rental_id": rentalID})
	return rental, nil
}

func (s *rentalService) Get(ctx context.Context, userID int64, rentalID string) (*domain.Rental, decimal.Decimal, error) {
	rental, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if rental.UserID != userID {
		return nil, decimal.Zero, errUnauthorized
	}
	liveFee := decimal.Zero
	if rental.Status == domain.RentalStatusActive {
		liveFee = billing.CalculateOverdueFee(rental.DueAt, time.Now().UTC(), s.lateFee)
	}
	return rental, liveFee, nil
}

func (s *rentalService) List(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	return s.store.Rentals().ListByUser(ctx, userID, status, page, pageSize)
}

// debit computes the settlement plan against current balances and applies it
// under the account's version. A version conflict surfaces as
// ErrConcurrentModification for the caller's retry loop to recompute.
func (s *rentalService) debit(
	ctx context.Context,
	tx repository.Store,
	userID int64,
	amount decimal.Decimal,
	txType domain.TransactionType,
	relatedRentalID *string,
	relatedIntentID *string,
	description string,
) (*domain.SettlementPlan, error) {
	acct, err := tx.Ledger().GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := billing.CalculatePlan(amount, acct.PointsBalance, acct.WalletBalance, s.policy)
	if err != nil {
		return nil, err
	}
	if !plan.IsSufficient {
		return nil, &domain.InsufficientFundsError{Plan: plan}
	}
	if err := tx.Ledger().ApplyDelta(ctx, userID, plan.WalletUsed.Neg(), -plan.PointsUsed, acct.Version, false); err != nil {
		return nil, err
	}
	record := &domain.LedgerTransaction{
		UserID:          userID,
		WalletAmount:    plan.WalletUsed.Neg(),
		PointsAmount:    -plan.PointsUsed,
		Type:            txType,
		RelatedRentalID: relatedRentalID,
		RelatedIntentID: relatedIntentID,
		Description:     description,
	}
	if err := tx.Ledger().CreateTransaction(ctx, record); err != nil {
		return nil, err
	}
	return &plan, nil
}

// refundRentalDebits reverses every debit recorded against the rental as one
// compensating credit, restoring the exact points/wallet split.
func (s *rentalService) refundRentalDebits(ctx context.Context, tx repository.Store, rental *domain.Rental, description string) error {
	debits, err := tx.Ledger().ListTransactionsByRental(ctx, rental.ID)
	if err != nil {
		return err
	}
	refundWallet := decimal.Zero
	refundPoints := int64(0)
	for _, d := range debits {
		if d.WalletAmount.IsNegative() || d.PointsAmount < 0 {
			refundWallet = refundWallet.Sub(d.WalletAmount)
			refundPoints -= d.PointsAmount
		}
	}
	if refundWallet.IsZero() && refundPoints == 0 {
		return nil
	}

	acct, err := tx.Ledger().GetAccount(ctx, rental.UserID)
	if err != nil {
		return err
	}
	if err := tx.Ledger().ApplyDelta(ctx, rental.UserID, refundWallet, refundPoints, acct.Version, false); err != nil {
		return err
	}
	return tx.Ledger().CreateTransaction(ctx, &domain.LedgerTransaction{
		UserID:          rental.UserID,
		WalletAmount:    refundWallet,
		PointsAmount:    refundPoints,
		Type:            domain.TransactionTypeRefundCredit,
		RelatedRentalID: &rental.ID,
		Description:     description,
	})
}

// postpaidUsageCost prices actual usage at the cheapest tier covering it,
// floored at the originally chosen package's price.
func (s *rentalService) postpaidUsageCost(ctx context.Context, tx repository.Store, rental *domain.Rental, now time.Time) (decimal.Decimal, error) {
	usedMinutes := int64(now.Sub(rental.StartedAt)+time.Minute-1) / int64(time.Minute)
	if usedMinutes < 1 {
		usedMinutes = 1
	}
	tier, err := tx.Packages().CheapestCovering(ctx, usedMinutes)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price postpaid usage: %w", err)
	}
	cost := tier.Price
	if rental.PackagePrice.GreaterThan(cost) {
		cost = rental.PackagePrice
	}
	return cost, nil
}
