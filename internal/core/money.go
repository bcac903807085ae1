package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount a single sale may carry, one billion
// lira. At this ceiling int64 kuruş totals stay exact for more than
// ninety million sales.
var MaxAmount = Money{Minor: 100_000_000_000}

var maxAmount = MaxAmount.Decimal()

// ParseAmount converts a decimal string to an exact Money value.
//
// Both dot (12.34) and comma (12,34) separators are accepted. A third
// fractional digit is rounded half-up. Zero is a valid amount; negative,
// empty and non-numeric input is rejected with ErrInvalidAmount.
//
//	ParseAmount("12,34")  -> 1234
//	ParseAmount("12.345") -> 1235
//	ParseAmount("0")      -> 0
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() || d.GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Minor: d.Round(2).Shift(2).IntPart()}, nil
}

// CoerceAmount is the read-side fallback for stored amounts that no longer
// parse. It never fails; coerced reports whether the value was replaced by 0.
func CoerceAmount(s string) (m Money, coerced bool) {
	m, err := ParseAmount(s)
	if err != nil {
		return Money{}, true
	}
	return m, false
}

func (m Money) Validate() error {
	if m.Minor < 0 || m.Minor > MaxAmount.Minor {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Minor: m.Minor + o.Minor}
}

func (m Money) Sub(o Money) Money {
	return Money{Minor: m.Minor - o.Minor}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -2)
}

// String formats the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	parsed, err := ParseAmount(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
