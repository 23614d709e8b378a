// Package numeric provides the exact decimal arithmetic used for every quantity,
// cost and value in the stock ledger.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Scale is the number of fractional digits kept by rounding operations.
const Scale int32 = 8

// Zero is the additive identity.
var Zero = decimal.Zero

// One is the multiplicative identity.
var One = decimal.NewFromInt(1)

// Parse reads a decimal string such as "12.50".
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, shared.Arithmetic("numeric: empty decimal")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &shared.Error{Kind: shared.KindArithmetic, Message: "numeric: invalid decimal " + s, Err: err}
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Add returns a + b.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b)
}

// Sub returns a - b.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}

// Mul returns a × b rounded to Scale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(Scale)
}

// Div returns a ÷ b rounded half-up to Scale. The divisor must be positive.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.Sign() <= 0 {
		return decimal.Zero, shared.Arithmetic("numeric: cannot divide %s by non-positive divisor %s", a.String(), b.String())
	}
	return a.DivRound(b, Scale), nil
}

// Cmp returns -1, 0 or +1.
func Cmp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// Abs returns |a|.
func Abs(a decimal.Decimal) decimal.Decimal {
	return a.Abs()
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}

// Round rounds a to Scale.
func Round(a decimal.Decimal) decimal.Decimal {
	return a.Round(Scale)
}

// Positive reports a > 0.
func Positive(a decimal.Decimal) bool {
	return a.Sign() > 0
}

// Ptr returns a pointer to a copy of d, handy for optional fields.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// OrZero dereferences an optional decimal.
func OrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
