package shifts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in cents. Decimal arithmetic on cents keeps
// expected == initial + sales - expenses exact.
type Money int64

var errBadAmount = errors.New("malformed amount")

// Units builds a Money from whole units and cents, e.g. Units(190, 0).
func Units(whole, cents int64) Money {
	if whole < 0 {
		return Money(whole*100 - cents)
	}
	return Money(whole*100 + cents)
}

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Float returns the amount in currency units; only for metrics.
func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a decimal JSON number with two places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string with at most two decimals.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMoney parses "12", "12.5", "-0.99" without going through float64.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadAmount
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, errBadAmount
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two decimals", errBadAmount)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 56)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadAmount, err)
	}
	f, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadAmount, err)
	}
	v := Money(w*100 + f)
	if neg {
		v = -v
	}
	return v, nil
}
