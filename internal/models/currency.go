package models

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// DefaultCurrency is assumed when an upstream omits the quote currency
const DefaultCurrency = money.USD

var allowedCurrencies = map[string]bool{
	money.USD: true,
	money.EUR: true,
	money.GBP: true,
	money.CHF: true,
	money.JPY: true,
	money.CAD: true,
	money.AUD: true,
}

// IsAllowedCurrency reports whether code may be persisted with a point
func IsAllowedCurrency(code string) bool {
	code = strings.ToUpper(code)
	return allowedCurrencies[code] && money.GetCurrency(code) != nil
}

// NormalizeCurrency upper-cases code and applies the default when empty
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// MinorUnits returns the number of decimal places used by the currency.
// Unknown codes fall back to two.
func MinorUnits(code string) int32 {
	if c := money.GetCurrency(strings.ToUpper(code)); c != nil {
		return int32(c.Fraction)
	}
	return 2
}
