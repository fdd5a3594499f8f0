// Package gateway holds the payment gateway clients. The engine never trusts
// a gateway blindly: clients only report what the provider said, and the
// payment processor compares the verified amount against the intent before any
// ledger mutation.
package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

// InitiateResult carries the redirect instructions a user needs to authorize
// the payment at the provider.
type InitiateResult struct {
	RedirectURL   string
	ProviderToken string
}

// VerifyResult is the provider's answer for one intent. VerifiedAmount is the
// amount the provider claims was paid; callers must reconcile it themselves.
type VerifyResult struct {
	Success          bool
	GatewayReference string
	VerifiedAmount   decimal.Decimal
}

type Client interface {
	Name() domain.Gateway
	Initiate(ctx context.Context, intentID string, amount decimal.Decimal, currency string) (*InitiateResult, error)
	Verify(ctx context.Context, intentID string, callbackData map[string]string) (*VerifyResult, error)
}

// Registry is the closed lookup table of configured gateways.
type Registry struct {
	clients map[domain.Gateway]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[domain.Gateway]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

func (r *Registry) Get(name domain.Gateway) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGateway, name)
	}
	return c, nil
}
