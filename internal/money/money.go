// Package money converts between user-facing decimal amounts and the int64
// minor units (cents) everything is stored in.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// maxAmount caps a single amount at 10 million major units.
const maxAmount = 10_000_000

// ToCents converts a decimal amount (like 12.34) to cents as int64.
// The amount must be positive and below the per-record cap.
func ToCents(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: must be positive, got %f", ErrInvalidAmount, amount)
	}
	if amount >= maxAmount {
		return 0, fmt.Errorf("%w: too large, got %f", ErrInvalidAmount, amount)
	}
	return int64(math.Round(amount * 100.0)), nil
}

// ToCentsSigned is ToCents without the positivity requirement, for values
// that may legitimately be negative or zero (the stored balance).
func ToCentsSigned(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	if amount >= maxAmount || amount <= -maxAmount {
		return 0, fmt.Errorf("%w: too large, got %f", ErrInvalidAmount, amount)
	}
	return int64(math.Round(amount * 100.0)), nil
}

// FormatCents renders cents as a plain decimal string with two digits,
// e.g. 1234 -> "12.34", -50 -> "-0.50". Integer math only.
func FormatCents(cent int64) string {
	sign := ""
	if cent < 0 {
		sign = "-"
		cent = -cent
	}
	return fmt.Sprintf("%s%d.%02d", sign, cent/100, cent%100)
}

// ApplyRate rescales cents by an exchange rate, rounding half away from zero
// to the nearest cent. The same rate applied to every record of a ledger
// keeps the re-denomination deterministic.
func ApplyRate(cent int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cent).Mul(rate).Round(0).IntPart()
}
