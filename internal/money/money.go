// Package money provides fixed-point decimal arithmetic for monetary amounts.
//
// Amounts travel through the system as decimal strings ("1234.50") and are
// stored in Postgres as NUMERIC(20,2). All arithmetic happens on scaled
// integers (cents) via math/big, never on floats.
package money

import (
	"errors"
	"math/big"
	"strings"
)

// Decimals is the fixed scale for all amounts (2 decimal places).
const Decimals = 2

var ErrInvalid = errors.New("invalid amount")

// Zero is the canonical zero amount.
const Zero = "0.00"

// Parse converts a decimal string into scaled integer cents.
// Accepts "120", "120.5", "120.50"; rejects negatives, empty strings,
// and anything with more than two fractional digits of precision
// (extra digits are truncated, matching NUMERIC(20,2) storage).
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, ErrInvalid
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, ErrInvalid
	}
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, ErrInvalid
	}
	if whole == "" {
		whole = "0"
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalid
	}
	return v, nil
}

// Format renders scaled integer cents back to a canonical decimal string.
func Format(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return Zero
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Add returns a+b as a canonical decimal string.
func Add(a, b string) (string, error) {
	av, err := Parse(a)
	if err != nil {
		return "", err
	}
	bv, err := Parse(b)
	if err != nil {
		return "", err
	}
	return Format(new(big.Int).Add(av, bv)), nil
}

// Sub returns a-b floored at zero as a canonical decimal string.
// The floor mirrors the ledger rule that credits never drive a balance
// negative; callers that must detect underflow use Cmp first.
func Sub(a, b string) (string, error) {
	av, err := Parse(a)
	if err != nil {
		return "", err
	}
	bv, err := Parse(b)
	if err != nil {
		return "", err
	}
	d := new(big.Int).Sub(av, bv)
	if d.Sign() < 0 {
		d.SetInt64(0)
	}
	return Format(d), nil
}

// Cmp compares two amounts: -1 if a<b, 0 if equal, +1 if a>b.
func Cmp(a, b string) (int, error) {
	av, err := Parse(a)
	if err != nil {
		return 0, err
	}
	bv, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return av.Cmp(bv), nil
}

// Min returns the smaller of two amounts.
func Min(a, b string) (string, error) {
	c, err := Cmp(a, b)
	if err != nil {
		return "", err
	}
	if c <= 0 {
		av, _ := Parse(a)
		return Format(av), nil
	}
	bv, _ := Parse(b)
	return Format(bv), nil
}

// IsPositive reports whether s parses to an amount strictly greater than zero.
func IsPositive(s string) bool {
	v, err := Parse(s)
	return err == nil && v.Sign() > 0
}

// Canonical normalizes an amount string ("7" → "7.00"). Errors on bad input.
func Canonical(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}
