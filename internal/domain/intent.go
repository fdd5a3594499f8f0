package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentPurpose string

const (
	IntentPurposeWalletTopup      IntentPurpose = "WALLET_TOPUP"
	IntentPurposeRentalSettlement IntentPurpose = "RENTAL_SETTLEMENT"
	IntentPurposeDuePayment       IntentPurpose = "DUE_PAYMENT"
)

type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "PENDING"
	IntentStatusCompleted IntentStatus = "COMPLETED"
	IntentStatusFailed    IntentStatus = "FAILED"
	IntentStatusCancelled IntentStatus = "CANCELLED"
	IntentStatusExpired   IntentStatus = "EXPIRED"
)

type Gateway string

const (
	GatewayKhalti Gateway = "KHALTI"
	GatewayEsewa  Gateway = "ESEWA"
	GatewayStripe Gateway = "STRIPE"
)

// PaymentIntent tracks one attempt to move money through an external gateway.
//
// The ID doubles as the idempotency key: every completion that references the
// same intent is guaranteed to apply the ledger credit at most once, no matter
// how many duplicate webhooks or verify clicks arrive. A terminal intent is
// never mutated again.
type PaymentIntent struct {
	ID               string          `json:"id"`
	UserID           int64           `json:"user_id"`
	Purpose          IntentPurpose   `json:"purpose"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Gateway          Gateway         `json:"gateway"`
	Status           IntentStatus    `json:"status"`
	ExpiresAt        time.Time       `json:"expires_at"`
	RelatedRentalID  *string         `json:"related_rental_id,omitempty"`
	GatewayReference *string         `json:"gateway_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the intent reached a final status.
func (p *PaymentIntent) IsTerminal() bool {
	return p.Status != IntentStatusPending
}
