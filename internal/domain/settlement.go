package domain

import "github.com/shopspring/decimal"

// SettlementPlan is how a required amount gets covered: points first, then
// wallet, any remainder as a gateway shortfall. Computed, never persisted.
//
// Invariant: PointsValueInMoney + WalletUsed + Shortfall == RequiredAmount
// exactly, with no rounding drift.
type SettlementPlan struct {
	RequiredAmount     decimal.Decimal `json:"required_amount"`
	PointsUsed         int64           `json:"points_used"`
	PointsValueInMoney decimal.Decimal `json:"points_value_in_money"`
	WalletUsed         decimal.Decimal `json:"wallet_used"`
	Shortfall          decimal.Decimal `json:"shortfall"`
	IsSufficient       bool            `json:"is_sufficient"`
	SuggestedTopup     decimal.Decimal `json:"suggested_topup"`
}

// SettlementResult is the outcome of completing a payment intent.
// AlreadyApplied is set when a duplicate completion found the intent already
// COMPLETED; the ledger credit was applied by the first call only.
type SettlementResult struct {
	IntentID         string          `json:"intent_id"`
	Status           IntentStatus    `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayReference string          `json:"gateway_reference"`
	AlreadyApplied   bool            `json:"already_applied"`
}
