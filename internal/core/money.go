// Package core defines the financial value types shared by the engine:
// money, dates, loans, credit accounts and their validation rules.
//
// This file contains the fixed-precision money type. All currency amounts
// are held at two fractional digits and every arithmetic step rounds to the
// cent immediately, so recomputing a schedule is reproducible byte-for-byte.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxMoney bounds representable amounts to 10^13 currency units (10^15
// cents). Anything beyond is rejected rather than silently truncated.
var maxMoney = decimal.New(1, 13)

// Money is a currency amount with exactly two fractional digits.
//
// The zero value is zero money. All operations that produce fractional
// results round half-up to the nearest cent at the point of the operation,
// never deferred, matching conventional banking practice.
type Money struct {
	amount decimal.Decimal
}

// MoneyFromCents builds a Money from an integer number of minor units.
func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -2)}
}

// MoneyFromDecimal builds a Money from an arbitrary decimal, rounding
// half-up to two places. Returns ErrAmountTooLarge when the value exceeds
// the representable bound.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.Abs().GreaterThan(maxMoney) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{amount: d.Round(2)}, nil
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the third decimal place. Only positive
// amounts are accepted; invalid formats, signs and zero yield
// ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34, nil
//	ParseMoney("12,345") -> 12.35, nil (rounds up)
//	ParseMoney("-1")     -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.Abs().GreaterThan(maxMoney) {
		return Money{}, ErrAmountTooLarge
	}
	m := Money{amount: d.Round(2)}
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{amount: m.amount.Sub(o.amount)}
}

// MulRate multiplies by a plain decimal rate (not a currency amount) and
// rounds half-up to the cent. This is the single rounding point for
// interest application: it happens once per period, at the multiplication.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(rate).Round(2)}
}

// DivInt divides the amount into n parts, rounding each half-up to the
// cent. Callers that need the parts to total exactly m must absorb the
// residue themselves (the amortization calculator does this in its final
// period).
func (m Money) DivInt(n int64) Money {
	return Money{amount: m.amount.Div(decimal.NewFromInt(n)).Round(2)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg()}
}

// Cmp compares m and o: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int {
	return m.amount.Cmp(o.amount)
}

// Equal reports whether m and o are the same amount.
func (m Money) Equal(o Money) bool {
	return m.amount.Equal(o.amount)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Cents returns the amount as an integer number of minor units.
func (m Money) Cents() int64 {
	return m.amount.Round(2).Shift(2).IntPart()
}

// Decimal exposes the underlying decimal for rate arithmetic.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// String renders the amount with exactly two decimal places, e.g. "10661.85".
func (m Money) String() string {
	return m.amount.StringFixed(2)
}
