// Package station talks to the kiosk hardware gateway. Stations expose a
// small HTTP API: reserve a slot, fire the eject motor, release a
// reservation, and read a slot's occupancy sensor.
package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"powerbank-rental-backend/internal/domain"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reserveResponse struct {
	SlotID string `json:"slot_id"`
}

// ReserveSlot asks the station for a slot holding a charged power bank. The
// reservation keeps other kiosks' rentals off that slot until eject or
// release.
func (c *Client) ReserveSlot(ctx context.Context, stationID string) (string, error) {
	var resp reserveResponse
	status, err := c.post(ctx, fmt.Sprintf("/stations/%s/reserve", stationID), nil, &resp)
	if err != nil {
		return "", fmt.Errorf("reserve slot: %w", err)
	}
	if status == http.StatusConflict {
		return "", domain.ErrNoAvailableSlot
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("reserve slot: unexpected status %d", status)
	}
	return resp.SlotID, nil
}

func (c *Client) ReleaseSlot(ctx context.Context, stationID, slotID string) error {
	status, err := c.post(ctx, fmt.Sprintf("/stations/%s/slots/%s/release", stationID, slotID), nil, nil)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("release slot: unexpected status %d", status)
	}
	return nil
}

type ejectRequest struct {
	RentalID string `json:"rental_id"`
}

func (c *Client) EjectPowerBank(ctx context.Context, stationID, slotID, rentalID string) error {
	status, err := c.post(ctx, fmt.Sprintf("/stations/%s/slots/%s/eject", stationID, slotID), ejectRequest{RentalID: rentalID}, nil)
	if err != nil {
		return fmt.Errorf("eject power bank: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("eject power bank: unexpected status %d", status)
	}
	return nil
}

type slotStatusResponse struct {
	Occupied bool `json:"occupied"`
}

func (c *Client) IsPowerBankPresent(ctx context.Context, stationID, slotID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+fmt.Sprintf("/stations/%s/slots/%s", stationID, slotID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("slot status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("slot status: unexpected status %d", resp.StatusCode)
	}
	var out slotStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Occupied, nil
}

func (c *Client) post(ctx context.Context, route string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
