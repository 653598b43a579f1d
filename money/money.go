// Package money converts between integer minor units and decimal major units.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var exponents = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"KES": 2,
	"VND": 0,
	"JPY": 0,
}

func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

func Supported(currency string) bool {
	_, ok := exponents[strings.ToUpper(currency)]
	return ok
}

// ToMajor turns 12345 USD cents into 123.45.
func ToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -Exponent(currency))
}

// FromMajor rounds half-up to the currency's minor unit.
func FromMajor(value decimal.Decimal, currency string) int64 {
	return value.Shift(Exponent(currency)).Round(0).IntPart()
}

// Percent returns round_half_up(amount * percent / 100).
func Percent(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Convert applies rate (units of `to` per unit of `from`) and rounds to `to` minor units.
func Convert(amount int64, from, to string, rate decimal.Decimal) int64 {
	return FromMajor(ToMajor(amount, from).Mul(rate), to)
}

// Plain renders the major-unit amount with the currency's fixed decimals, e.g. "10.00".
func Plain(amount int64, currency string) string {
	return ToMajor(amount, currency).StringFixed(Exponent(currency))
}

// Format renders "1,250.00 USD" / "250,000 VND".
func Format(amount int64, currency string) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := Plain(amount, currency)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(currency))
	return b.String()
}

// FormatSigned always carries a sign: "+1,250.00 USD", "-250,000 VND".
func FormatSigned(amount int64, currency string) string {
	if amount < 0 {
		return Format(amount, currency)
	}
	return "+" + Format(amount, currency)
}
