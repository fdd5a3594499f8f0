package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusPending   RentalStatus = "PENDING"
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusCompleted RentalStatus = "COMPLETED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

type PaymentModel string

const (
	PaymentModelPrepaid  PaymentModel = "PREPAID"
	PaymentModelPostpaid PaymentModel = "POSTPAID"
)

// Rental is the central aggregate. Status and time fields are mutated only by
// the rental service; a rental is immutable once COMPLETED or CANCELLED except
// for late-arriving due settlement on postpaid rentals.
//
// "Overdue" is not a stored status. An ACTIVE rental past DueAt is overdue as
// a derived view, recomputed on every read.
type Rental struct {
	ID              string  `json:"id"`
	UserID          int64   `json:"user_id"`
	OriginStationID string  `json:"origin_station_id"`
	ReturnStationID *string `json:"return_station_id,omitempty"`
	SlotID          string  `json:"slot_id"`
	// Package snapshot fields, captured at rental creation time. All cost
	// calculations use these snapshots, not live package prices.
	PackageID              string          `json:"package_id"`
	PackagePrice           decimal.Decimal `json:"package_price"`
	PackageDurationMinutes int64           `json:"package_duration_minutes"`
	PaymentModel           PaymentModel    `json:"payment_model"`
	Status                 RentalStatus    `json:"status"`
	StartedAt              time.Time       `json:"started_at"`
	DueAt                  time.Time       `json:"due_at"`
	EndedAt                *time.Time      `json:"ended_at,omitempty"`
	AmountPaid             decimal.Decimal `json:"amount_paid"`
	OverdueAmount          decimal.Decimal `json:"overdue_amount"`
	IsReturnedOnTime       bool            `json:"is_returned_on_time"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// IsOverdue reports whether an active rental is past its due time.
func (r *Rental) IsOverdue(now time.Time) bool {
	return r.Status == RentalStatusActive && now.After(r.DueAt)
}

// IsTerminal reports whether the rental permits no further lifecycle
// transitions.
func (r *Rental) IsTerminal() bool {
	return r.Status == RentalStatusCompleted || r.Status == RentalStatusCancelled
}

// HasUnpaidDues reports whether settlement is still outstanding.
func (r *Rental) HasUnpaidDues() bool {
	return r.OverdueAmount.IsPositive()
}
