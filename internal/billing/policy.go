package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy is an injected configuration snapshot for settlement calculations.
// Calculators never read process-global state, so a computation is fully
// determined by its arguments.
type Policy struct {
	// PointsPerUnit is how many loyalty points equal one currency unit,
	// e.g. 10 points = NPR 1.
	PointsPerUnit int64
	// TopupIncrement is the granularity suggested top-ups round up to.
	TopupIncrement decimal.Decimal
}

// Validate rejects policies the calculator cannot evaluate exactly.
// PointsPerUnit must divide 100 so one point is worth a whole number of minor
// units; point valuation then stays in exact integer arithmetic and no
// rounding mode question arises.
func (p Policy) Validate() error {
	if p.PointsPerUnit <= 0 {
		return fmt.Errorf("points per unit must be positive, got %d", p.PointsPerUnit)
	}
	if 100%p.PointsPerUnit != 0 {
		return fmt.Errorf("points per unit must divide 100 evenly, got %d", p.PointsPerUnit)
	}
	if !p.TopupIncrement.IsPositive() {
		return fmt.Errorf("top-up increment must be positive, got %s", p.TopupIncrement)
	}
	return nil
}

// minorUnitsPerPoint is the exact value of one point in minor units.
func (p Policy) minorUnitsPerPoint() int64 {
	return 100 / p.PointsPerUnit
}

// LateFeeConfig drives the overdue fee calculation. Read-only to the
// calculator.
type LateFeeConfig struct {
	GracePeriodMinutes int64
	HourlyRate         decimal.Decimal
	MaxDailyRate       decimal.Decimal
}

func (c LateFeeConfig) Validate() error {
	if c.GracePeriodMinutes < 0 {
		return fmt.Errorf("grace period must not be negative, got %d", c.GracePeriodMinutes)
	}
	if c.HourlyRate.IsNegative() {
		return fmt.Errorf("hourly rate must not be negative, got %s", c.HourlyRate)
	}
	if c.MaxDailyRate.IsNegative() {
		return fmt.Errorf("max daily rate must not be negative, got %s", c.MaxDailyRate)
	}
	return nil
}
