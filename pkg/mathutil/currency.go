// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/shopspring/decimal"
)

// Round rounds a value to two decimals, i.e. to represent real currency.
// Used for making logical comparisons.
func Round(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	rounded, _ := decimal.NewFromFloat(val).Round(constants.DecimalPlaces).Float64()
	return rounded
}

// FloorCurrency truncates a value down to the cent. Bids are floored so a
// recommendation never exceeds the amount that was proven feasible.
func FloorCurrency(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	floored, _ := decimal.NewFromFloat(val).RoundFloor(constants.DecimalPlaces).Float64()
	return floored
}

// IsZero checks if a value is effectively zero (within tolerance)
func IsZero(val float64) bool {
	return math.Abs(val) <= constants.CurrencyTolerance
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Clip01 bounds a probability or fraction to [0, 1]. NaN maps to 0.
func Clip01(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return Clamp(value, 0, 1)
}

// SafeDiv divides a by b, substituting Epsilon when |b| is smaller than it.
func SafeDiv(a, b float64) float64 {
	if math.Abs(b) < constants.Epsilon {
		if b < 0 {
			return a / -constants.Epsilon
		}
		return a / constants.Epsilon
	}
	return a / b
}

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * constants.PercentageMultiplier
}
