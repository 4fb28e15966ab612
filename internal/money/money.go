// Package money holds the fixed-point rules shared by conversion, ledger and
// commission code. Every rounding of a GTON amount goes through here.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of fractional digits stored for every ledger amount.
	Scale int32 = 6
	// WorkScale is the precision carried through intermediate hops of a conversion chain.
	WorkScale int32 = 18
)

var (
	ErrDivisionByZero = errors.New("money: division by zero")
	ErrInvalidAmount  = errors.New("money: invalid amount")
)

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
	// Unit is the smallest representable ledger amount (10^-6).
	Unit = decimal.New(1, -Scale)
)

// Round rounds half-up (away from zero on ties) to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Floor truncates toward negative infinity at Scale digits.
func Floor(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(Scale)
}

// Div divides at WorkScale precision. Callers round the final result themselves.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.DivRound(b, WorkScale), nil
}

// Percent returns amount * pct / 100 without rounding to Scale.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).DivRound(Hundred, WorkScale)
}

// Parse reads a decimal string coming from config or a request body.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// ParsePositive is Parse that also rejects zero and negative values.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return d, nil
}

// String renders an amount with exactly Scale fractional digits.
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
