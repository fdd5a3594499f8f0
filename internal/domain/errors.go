package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInvalidBalanceState        = errors.New("invalid balance state")
	ErrNoAvailableSlot            = errors.New("no available slot")
	ErrReturnRequiredBeforeCancel = errors.New("power bank must be returned before cancelling")
	ErrAccountBlocked             = errors.New("account blocked by unpaid dues")
	ErrVerificationMismatch       = errors.New("gateway verification mismatch")
	ErrGatewayDeclined            = errors.New("gateway declined payment")
	ErrIntentExpired              = errors.New("payment intent expired")
	ErrIntentAlreadyTerminal      = errors.New("payment intent already terminal")
	ErrConcurrentModification     = errors.New("concurrent modification")
	ErrUnknownGateway             = errors.New("unknown payment gateway")
)

// InsufficientFundsError carries the computed settlement plan so callers can
// surface the shortfall and suggested top-up. Matches ErrInsufficientFunds
// under errors.Is.
type InsufficientFundsError struct {
	Plan SettlementPlan
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"insufficient funds: required %s, short by %s (suggested top-up %s)",
		e.Plan.RequiredAmount, e.Plan.Shortfall, e.Plan.SuggestedTopup,
	)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
