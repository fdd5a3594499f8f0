package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

// CalculatePlan computes how a required amount is covered from a user's
// balances. Points are always applied before wallet; there is no wallet-first
// mode. Whatever neither covers becomes the gateway shortfall.
//
// All arithmetic is decimal at minor-unit precision. Point valuation truncates
// down to the minor unit, never up, and works in integer minor units so
// PointsValueInMoney + WalletUsed + Shortfall reproduces RequiredAmount
// exactly.
func CalculatePlan(
	required decimal.Decimal,
	pointsBalance int64,
	walletBalance decimal.Decimal,
	policy Policy,
) (domain.SettlementPlan, error) {
	if err := policy.Validate(); err != nil {
		return domain.SettlementPlan{}, fmt.Errorf("invalid billing policy: %w", err)
	}
	if required.IsNegative() {
		return domain.SettlementPlan{}, fmt.Errorf("required amount must not be negative, got %s", required)
	}
	if pointsBalance < 0 {
		return domain.SettlementPlan{}, fmt.Errorf("%w: points balance %d", domain.ErrInvalidBalanceState, pointsBalance)
	}
	if walletBalance.IsNegative() {
		return domain.SettlementPlan{}, fmt.Errorf("%w: wallet balance %s", domain.ErrInvalidBalanceState, walletBalance)
	}

	required = required.Truncate(2)
	plan := domain.SettlementPlan{
		RequiredAmount:     required,
		PointsValueInMoney: decimal.Zero,
		WalletUsed:         decimal.Zero,
		Shortfall:          decimal.Zero,
		SuggestedTopup:     decimal.Zero,
	}
	if required.IsZero() {
		plan.IsSufficient = true
		return plan, nil
	}

	// Work in minor units: with PointsPerUnit dividing 100, each point is
	// worth a whole number of minor units and the valuation is exact.
	requiredMinor := required.Mul(decimal.NewFromInt(100)).IntPart()
	minorPerPoint := policy.minorUnitsPerPoint()

	maxPointsByAmount := requiredMinor / minorPerPoint
	pointsUsed := pointsBalance
	if maxPointsByAmount < pointsUsed {
		pointsUsed = maxPointsByAmount
	}
	plan.PointsUsed = pointsUsed
	plan.PointsValueInMoney = decimal.New(pointsUsed*minorPerPoint, -2)

	remainder := required.Sub(plan.PointsValueInMoney)
	plan.WalletUsed = decimal.Min(walletBalance.Truncate(2), remainder)
	plan.Shortfall = remainder.Sub(plan.WalletUsed)
	plan.IsSufficient = plan.Shortfall.IsZero()

	if !plan.IsSufficient {
		increments := plan.Shortfall.Div(policy.TopupIncrement).Ceil()
		plan.SuggestedTopup = increments.Mul(policy.TopupIncrement)
	}
	return plan, nil
}
