package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountAR parses an amount written in the Argentine locale ("1.234,56").
// Thousands dots are dropped and the decimal comma becomes a point. Blank or
// unparsable input yields zero. The result is rounded to cents.
func ParseAmountAR(raw string) decimal.Decimal {
	return Round2(ParseDecimalAR(raw))
}

// ParseDecimalAR is ParseAmountAR without the rounding, for exchange rates.
func ParseDecimalAR(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents converts an amount to integer cents. The amount is rounded first.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
