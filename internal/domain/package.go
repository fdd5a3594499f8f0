package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RentalPackage is a rentable duration tier. Postpaid rentals are re-priced at
// return time against the cheapest tier covering actual usage.
type RentalPackage struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int64           `json:"duration_minutes"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}
