package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits maps supported currency codes to their number of decimal places.
var minorUnits = map[string]int32{
	"KES": 2, // Kenyan Shilling
	"UGX": 0, // Ugandan Shilling
	"TZS": 2, // Tanzanian Shilling
}

// Default is the currency every ledger in the store is kept in.
const Default = "KES"

// ParseAmount parses a positive amount with at most the currency's number of
// decimal places.
func ParseAmount(s, currency string) (decimal.Decimal, error) {
	places, ok := minorUnits[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", currency)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", d)
	}
	if !d.Equal(d.Truncate(places)) {
		return decimal.Zero, fmt.Errorf("amount %s has more than %d decimal places", d, places)
	}
	return d, nil
}

// WholeUnits rounds an amount up to the next whole currency unit. The
// provider only accepts integer amounts, and rounding down would
// under-collect.
func WholeUnits(d decimal.Decimal) int64 {
	return d.Ceil().IntPart()
}

// Format renders an amount for customer-facing text, e.g. "KES 1,000.00".
func Format(d decimal.Decimal, currency string) string {
	places, ok := minorUnits[currency]
	if !ok {
		places = 2
	}
	s := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return currency + " " + sign + b.String() + frac
}
