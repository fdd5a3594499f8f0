package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"powerbank-rental-backend/internal/domain"
)

func TestClient_ReserveSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the assigned slot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/stations/st-1/reserve", r.URL.Path)
			assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"slot_id": "slot-3"})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "key-1", time.Second)
		slotID, err := client.ReserveSlot(ctx, "st-1")
		assert.NoError(t, err)
		assert.Equal(t, "slot-3", slotID)
	})

	t.Run("conflict means no slot available", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "key-1", time.Second)
		_, err := client.ReserveSlot(ctx, "st-1")
		assert.ErrorIs(t, err, domain.ErrNoAvailableSlot)
	})
}

func TestClient_EjectPowerBank(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the rental id to the slot route", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/stations/st-1/slots/slot-3/eject", r.URL.Path)
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r-1", body["rental_id"])
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "key-1", time.Second)
		assert.NoError(t, client.EjectPowerBank(ctx, "st-1", "slot-3", "r-1"))
	})

	t.Run("non-ok status surfaces as an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "key-1", time.Second)
		err := client.EjectPowerBank(ctx, "st-1", "slot-3", "r-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "504")
	})
}

func TestClient_IsPowerBankPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/stations/st-1/slots/slot-3", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"occupied": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-1", time.Second)
	present, err := client.IsPowerBankPresent(context.Background(), "st-1", "slot-3")
	assert.NoError(t, err)
	assert.True(t, present)
}
