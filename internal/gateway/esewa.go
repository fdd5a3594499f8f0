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

type EsewaClient struct {
	baseURL    string
	merchantID string
	secretKey  string
	httpClient *http.Client
}

func NewEsewaClient(baseURL, merchantID, secretKey string, timeout time.Duration) *EsewaClient {
	return &EsewaClient{
		baseURL:    baseURL,
		merchantID: merchantID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *EsewaClient) Name() domain.Gateway {
	return domain.GatewayEsewa
}

func (c *EsewaClient) Initiate(ctx context.Context, intentID string, amount decimal.Decimal, currency string) (*InitiateResult, error) {
	// eSewa's flow is form-redirect based; the redirect carries the intent id
	// as the transaction uuid so the later status check can find it.
	q := url.Values{}
	q.Set("scd", c.merchantID)
	q.Set("transaction_uuid", intentID)
	q.Set("total_amount", amount.StringFixed(2))
	return &InitiateResult{
		RedirectURL:   c.baseURL + "/epay/main/v2/form?" + q.Encode(),
		ProviderToken: intentID,
	}, nil
}

type esewaStatusResponse struct {
	Status      string          `json:"status"`
	RefID       string          `json:"ref_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (c *EsewaClient) Verify(ctx context.Context, intentID string, callbackData map[string]string) (*VerifyResult, error) {
	amount := callbackData["total_amount"]
	if amount == "" {
		return nil, errors.New("esewa verify: callback missing total_amount")
	}

	q := url.Values{}
	q.Set("product_code", c.merchantID)
	q.Set("transaction_uuid", intentID)
	q.Set("total_amount", amount)
	endpoint := c.baseURL + "/api/epay/transaction/status/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esewa verify: unexpected status %d", resp.StatusCode)
	}
	var body esewaStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("esewa verify: %w", err)
	}
	return &VerifyResult{
		Success:          strings.EqualFold(body.Status, "COMPLETE"),
		GatewayReference: body.RefID,
		VerifiedAmount:   body.TotalAmount,
	}, nil
}
