// Package core provides the reporting domain types and amount handling.
//
// Amounts travel over the wire as text and are parsed into fixed-point
// decimals before any arithmetic. A value that does not parse is an error,
// never a zero.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string such as "1234.50" into a fixed-point amount.
//
// Leading and trailing whitespace is ignored. Empty, non-numeric and
// non-finite input returns an error wrapping ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("100")     -> 100, nil
//	ParseAmount(" 12.50 ") -> 12.5, nil
//	ParseAmount("-3.2")    -> -3.2, nil
//	ParseAmount("12,50")   -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// ParseQuantity converts a whole-number string into a non-negative quantity.
// "3" and "3.00" are accepted, "3.5" and "-1" are not.
func ParseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidQuantity)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || d.IsNegative() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	if !d.LessThanOrEqual(decimal.NewFromInt(1<<53)) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidQuantity, s)
	}
	return d.IntPart(), nil
}

// FormatAmount renders an amount with two decimals and comma thousands
// separators, e.g. 1234.5 -> "1,234.50".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	return sign + groupThousands(intPart) + "." + frac
}

// FormatQuantity renders a quantity with comma thousands separators.
func FormatQuantity(q int64) string {
	s := fmt.Sprintf("%d", q)
	if q < 0 {
		return "-" + groupThousands(s[1:])
	}
	return groupThousands(s)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
