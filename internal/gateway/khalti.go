package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type KhaltiClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewKhaltiClient(baseURL, secretKey string, timeout time.Duration) *KhaltiClient {
	return &KhaltiClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *KhaltiClient) Name() domain.Gateway {
	return domain.GatewayKhalti
}

type khaltiInitiateRequest struct {
	PurchaseOrderID string `json:"purchase_order_id"`
	// Khalti amounts are in paisa.
	Amount int64 `json:"amount"`
}

type khaltiInitiateResponse struct {
	PaymentURL string `json:"payment_url"`
	Pidx       string `json:"pidx"`
}

func (c *KhaltiClient) Initiate(ctx context.Context, intentID string, amount decimal.Decimal, currency string) (*InitiateResult, error) {
	body := khaltiInitiateRequest{
		PurchaseOrderID: intentID,
		Amount:          amount.Mul(decimal.NewFromInt(100)).IntPart(),
	}
	var resp khaltiInitiateResponse
	if err := c.post(ctx, "/epayment/initiate/", body, &resp); err != nil {
		return nil, fmt.Errorf("khalti initiate: %w", err)
	}
	return &InitiateResult{RedirectURL: resp.PaymentURL, ProviderToken: resp.Pidx}, nil
}

type khaltiLookupRequest struct {
	Pidx string `json:"pidx"`
}

type khaltiLookupResponse struct {
	Pidx        string `json:"pidx"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
}

func (c *KhaltiClient) Verify(ctx context.Context, intentID string, callbackData map[string]string) (*VerifyResult, error) {
	pidx := callbackData["pidx"]
	if pidx == "" {
		return nil, errors.New("khalti verify: callback missing pidx")
	}
	var resp khaltiLookupResponse
	if err := c.post(ctx, "/epayment/lookup/", khaltiLookupRequest{Pidx: pidx}, &resp); err != nil {
		return nil, fmt.Errorf("khalti verify: %w", err)
	}
	return &VerifyResult{
		Success:          resp.Status == "Completed",
		GatewayReference: resp.Pidx,
		VerifiedAmount:   decimal.New(resp.TotalAmount, -2),
	}, nil
}

func (c *KhaltiClient) post(ctx context.Context, route string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

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
