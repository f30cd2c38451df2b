package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedAmount = errors.New("malformed amount")
	ErrNegativeAmount  = errors.New("amount must be positive")
)

// Amounts are held in minor units (cents) as int64.
// 500.00 is stored as 50000. Arithmetic on int64 keeps the audit rows exact;
// decimal strings exist only at the transport boundary.

// Parse converts a decimal string like "500.00" into cents.
// At most two fraction digits are accepted; negative amounts are rejected.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMalformedAmount
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	// ParseInt alone would admit a sign inside either part ("5.-1"), so both
	// parts must be bare digits before any conversion.
	if whole == "" || len(frac) > 2 || !allDigits(whole) || !allDigits(frac) {
		return 0, ErrMalformedAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrMalformedAmount
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	if w > (math.MaxInt64-f)/100 {
		return 0, ErrMalformedAmount
	}
	return w*100 + f, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Format renders cents as a decimal string with two fraction digits.
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
