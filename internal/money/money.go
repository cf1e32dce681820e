// Package money holds the integer currency and stock primitives used by the
// trade service. Amounts are always whole cents; fractional currency never
// enters the system.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrBadDecimal = errors.New("value must be in decimal format with at most 2 decimals, i.e 9.95")
	ErrOverflow   = errors.New("amount out of range")
)

// ParseDecimalCents parses a user supplied price like "1.11" or "5,1" into
// cents. Both "." and "," are accepted as the decimal separator. More than
// two fraction digits, signs and any non numeric characters are rejected.
//
//	"1"    -> 100
//	"1,"   -> 100
//	"5,1"  -> 510
//	"1.11" -> 111
func ParseDecimalCents(s string) (int64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' })
	// FieldsFunc drops empty segments, so recover the raw split to keep the
	// fraction length check exact ("1." has an empty fraction and is valid).
	raw := strings.Split(strings.ReplaceAll(s, ",", "."), ".")
	if len(raw) >= 2 && len(raw[1]) > 2 {
		return 0, ErrBadDecimal
	}
	flat := strings.Join(parts, "")
	if flat == "" {
		return 0, ErrBadDecimal
	}
	for _, r := range flat {
		if r < '0' || r > '9' {
			return 0, ErrBadDecimal
		}
	}
	exp := 2
	if len(raw) >= 2 {
		exp = 2 - len(raw[1])
	}
	n, err := strconv.ParseInt(flat, 10, 64)
	if err != nil {
		return 0, ErrBadDecimal
	}
	for ; exp > 0; exp-- {
		if n > math.MaxInt64/10 {
			return 0, ErrOverflow
		}
		n *= 10
	}
	return n, nil
}

// FormatCents renders cents as a decimal string, e.g. 111 -> "1.11".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MulChecked multiplies a unit price by a quantity with overflow detection.
func MulChecked(priceCents, quantity int64) (int64, error) {
	if priceCents == 0 || quantity == 0 {
		return 0, nil
	}
	total := priceCents * quantity
	if total/quantity != priceCents {
		return 0, ErrOverflow
	}
	return total, nil
}

// AddChecked adds two cent amounts with overflow detection.
func AddChecked(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}
