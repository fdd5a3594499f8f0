package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type StripeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewStripeClient(baseURL, apiKey string, timeout time.Duration) *StripeClient {
	return &StripeClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *StripeClient) Name() domain.Gateway {
	return domain.GatewayStripe
}

type stripeSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
}

func (c *StripeClient) Initiate(ctx context.Context, intentID string, amount decimal.Decimal, currency string) (*InitiateResult, error) {
	form := url.Values{}
	form.Set("client_reference_id", intentID)
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][unit_amount]", amount.Mul(decimal.NewFromInt(100)).String())
	form.Set("line_items[0][quantity]", "1")

	var resp stripeSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &resp); err != nil {
		return nil, fmt.Errorf("stripe initiate: %w", err)
	}
	return &InitiateResult{RedirectURL: resp.URL, ProviderToken: resp.ID}, nil
}

func (c *StripeClient) Verify(ctx context.Context, intentID string, callbackData map[string]string) (*VerifyResult, error) {
	sessionID := callbackData["session_id"]
	if sessionID == "" {
		return nil, errors.New("stripe verify: callback missing session_id")
	}
	var resp stripeSessionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionID, nil, &resp); err != nil {
		return nil, fmt.Errorf("stripe verify: %w", err)
	}
	return &VerifyResult{
		Success:          resp.PaymentStatus == "paid",
		GatewayReference: resp.ID,
		VerifiedAmount:   decimal.New(resp.AmountTotal, -2),
	}, nil
}

func (c *StripeClient) do(ctx context.Context, method, route string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
