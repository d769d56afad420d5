// Package money converts between human decimal amounts and the ledger's
// smallest indivisible unit (24 fractional digits).
package money

import (
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"math/big"
	"strings"
)

const Decimals = 24

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ToSmallestUnit parses a non-negative decimal amount ("7", "0.5", "1.25")
// and returns the integer amount of smallest units as a decimal string.
func ToSmallestUnit(amount string) (string, error) {
	s := strings.TrimSpace(amount)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return "", apperr.Amount(amount)
	}
	if !digits(whole) || !digits(frac) || len(frac) > Decimals {
		return "", apperr.Amount(amount)
	}
	if whole == "" {
		whole = "0"
	}
	raw := whole + frac + strings.Repeat("0", Decimals-len(frac))
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", apperr.Amount(amount)
	}
	return n.String(), nil
}

// FromSmallestUnit renders an integer amount of smallest units as a
// canonical decimal: no trailing fractional zeros and no bare dot.
func FromSmallestUnit(units string) (string, error) {
	s := strings.TrimSpace(units)
	if s == "" || !digits(s) {
		return "", apperr.Amount(units)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", apperr.Amount(units)
	}
	q, r := new(big.Int).QuoRem(n, unit, new(big.Int))
	if r.Sign() == 0 {
		return q.String(), nil
	}
	frac := r.String()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	return q.String() + "." + frac, nil
}

// Units is ToSmallestUnit for whole amounts, used for deposits.
func Units(n int64) string {
	if n < 0 {
		n = 0
	}
	return new(big.Int).Mul(big.NewInt(n), unit).String()
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
