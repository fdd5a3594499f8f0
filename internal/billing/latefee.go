package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	minutesPerHour = 60
	minutesPerDay  = 1440
)

// CalculateOverdueFee computes the late-return penalty for a rental due at
// dueAt observed at now. Pure and side-effect free; callers re-evaluate it on
// every status read so displayed amounts are always current, and persist the
// result only when the rental reaches a terminal state.
//
// Inside the grace period the fee is zero. Past it, started hours are charged
// at the hourly rate, capped at the daily maximum per started day. Every
// intermediate value is a decimal; no float enters the computation.
func CalculateOverdueFee(dueAt, now time.Time, cfg LateFeeConfig) decimal.Decimal {
	overdueMinutes := int64(now.Sub(dueAt) / time.Minute)
	if overdueMinutes <= cfg.GracePeriodMinutes {
		return decimal.Zero
	}

	effectiveMinutes := overdueMinutes - cfg.GracePeriodMinutes
	hours := (effectiveMinutes + minutesPerHour - 1) / minutesPerHour
	days := (effectiveMinutes + minutesPerDay - 1) / minutesPerDay

	fee := cfg.HourlyRate.Mul(decimal.NewFromInt(hours))
	dailyCap := cfg.MaxDailyRate.Mul(decimal.NewFromInt(days))
	return decimal.Min(fee, dailyCap)
}
