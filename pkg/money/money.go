// Package money holds the fixed-point amount conventions shared by every
// layer: two fractional digits, canonical string form, and the transfer
// minimum. Amounts are decimal.Decimal throughout; float64 never touches a
// balance.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Exponent is the number of fractional digits an amount carries.
const Exponent = 2

// Precision is the maximum total number of digits, matching numeric(15,2).
const Precision = 15

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// MinTransfer is the smallest amount a transfer may move.
var MinTransfer = decimal.New(100000, -Exponent) // 1000.00

var (
	ErrTooManyFractionalDigits = errors.New("amount has more than 2 fractional digits")
	ErrPrecisionExceeded       = errors.New("amount exceeds 15 total digits")
	ErrNegativeBalance         = errors.New("balance cannot be negative")
)

// Canonical renders an amount in the canonical two-fractional-digit form
// used for storage, cache keys, and wire responses. Every writer goes
// through this so that string comparison of amounts is exact.
func Canonical(d decimal.Decimal) string {
	return d.StringFixed(Exponent)
}

// Parse parses a stored or wire amount string.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Validate checks that a signed amount fits the storage representation.
func Validate(d decimal.Decimal) error {
	if d.Exponent() < -Exponent {
		return ErrTooManyFractionalDigits
	}
	if len(d.Abs().Truncate(0).String())+Exponent > Precision {
		return ErrPrecisionExceeded
	}
	return nil
}

// ValidateBalance checks that a wallet balance is representable and
// non-negative.
func ValidateBalance(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegativeBalance
	}
	return Validate(d)
}
