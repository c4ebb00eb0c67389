// Package core provides money parsing and handling utilities.
//
// This file contains helpers for parsing user-entered amounts and rendering
// decimal amounts alongside a currency code.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are JSON numbers in storage, the API and the assistant payload.
// Quoted strings are still accepted when decoding.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a user-entered decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up to two decimal places. Signed, zero, or malformed inputs
// return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatMoney renders an amount with two decimals after its currency code,
// e.g. "USD 12.30".
func FormatMoney(d decimal.Decimal, currencyCode string) string {
	code := NormalizeCurrency(currencyCode)
	if code == "" {
		code = DefaultCurrency
	}
	return code + " " + d.StringFixed(2)
}

// percentOf returns part/whole*100 rounded to one decimal place, or zero
// when whole is not positive.
func percentOf(part, whole decimal.Decimal) float64 {
	f, _ := ratioPercent(part, whole).Round(1).Float64()
	return f
}

// ratioPercent is part/whole*100 without rounding.
func ratioPercent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}
