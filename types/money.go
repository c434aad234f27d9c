// Package types provides common types used across Journal.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Money represents a monetary value as a scaled integer.
// Units holds the value in minor units at the given decimal Scale,
// so the logical value is Units / 10^Scale. All arithmetic is
// integer-only — no floating point.
//
// Examples:
//   - Money{Units: 4900, Scale: 2, Currency: "USD"} = 49.00 USD
//   - Money{Units: 123457, Scale: 4, Currency: "RUB"} = 12.3457 RUB
type Money struct {
	Units    int64  `json:"units"`    // Scaled integer value
	Scale    int    `json:"scale"`    // Number of decimal places
	Currency string `json:"currency"` // ISO 4217 uppercase: "USD", "EUR", "RUB"
}

// MaxScale is the largest decimal scale Money supports.
const MaxScale = 12

// New creates a Money value from pre-scaled units.
func New(units int64, currency string, scale int) Money {
	return Money{Units: units, Scale: scale, Currency: normalizeCurrency(currency)}
}

// Zero returns a zero Money value in the specified currency and scale.
func Zero(currency string, scale int) Money {
	return Money{Units: 0, Scale: scale, Currency: normalizeCurrency(currency)}
}

// Parse parses a decimal string like "12.345678" or "-0.5" into a Money
// value at the given scale, rounding half-up (away from zero) when the
// input carries more fractional digits than scale allows.
func Parse(s, currency string, scale int) (Money, error) {
	if scale < 0 || scale > MaxScale {
		return Money{}, fmt.Errorf("money: scale %d out of range", scale)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("money: parse: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return Money{}, fmt.Errorf("money: parse: missing digits")
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Money{}, fmt.Errorf("money: parse %q: invalid character %q", s, r)
		}
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}

	// Scale the integer part up, folding in fractional digits.
	for i := 0; i < scale; i++ {
		units *= 10
		if i < len(fracPart) {
			units += int64(fracPart[i] - '0')
		}
	}

	// Round half-up on the first dropped digit.
	if len(fracPart) > scale && fracPart[scale] >= '5' {
		units++
	}

	if neg {
		units = -units
	}

	return Money{Units: units, Scale: scale, Currency: normalizeCurrency(currency)}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s, currency string, scale int) Money {
	m, err := Parse(s, currency, scale)
	if err != nil {
		panic(err)
	}
	return m
}

// FromFloat converts a float64 into a Money value at the given scale,
// rounding half-up. Conversion goes through the shortest decimal
// representation of the float so the same logical value always lands
// on the same stored units regardless of binary noise in the input.
func FromFloat(f float64, currency string, scale int) (Money, error) {
	return Parse(strconv.FormatFloat(f, 'f', -1, 64), currency, scale)
}

// Rescale returns the Money value converted to a different scale,
// rounding half-up when precision is dropped.
func (m Money) Rescale(scale int) Money {
	if scale == m.Scale {
		return m
	}

	units := m.Units
	if scale > m.Scale {
		for i := m.Scale; i < scale; i++ {
			units *= 10
		}
		return Money{Units: units, Scale: scale, Currency: m.Currency}
	}

	neg := units < 0
	if neg {
		units = -units
	}
	div := int64(1)
	for i := scale; i < m.Scale; i++ {
		div *= 10
	}
	q := units / div
	if (units%div)*2 >= div {
		q++
	}
	if neg {
		q = -q
	}
	return Money{Units: q, Scale: scale, Currency: m.Currency}
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies or scales don't match.
func (m Money) Add(other Money) Money {
	m.assertCompatible(other)
	return Money{Units: m.Units + other.Units, Scale: m.Scale, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies or scales don't match.
func (m Money) Subtract(other Money) Money {
	m.assertCompatible(other)
	return Money{Units: m.Units - other.Units, Scale: m.Scale, Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Units: -m.Units, Scale: m.Scale, Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Units < 0 {
		return Money{Units: -m.Units, Scale: m.Scale, Currency: m.Currency}
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Units == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Units > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Units < 0 }

// Equal returns true if both Money values are equal (same units, scale and currency).
func (m Money) Equal(other Money) bool {
	return m.Units == other.Units && m.Scale == other.Scale && m.Currency == other.Currency
}

// LessThan returns true if this Money is less than other. Panics if incompatible.
func (m Money) LessThan(other Money) bool {
	m.assertCompatible(other)
	return m.Units < other.Units
}

// GreaterThan returns true if this Money is greater than other. Panics if incompatible.
func (m Money) GreaterThan(other Money) bool {
	m.assertCompatible(other)
	return m.Units > other.Units
}

// Formatting methods

// Format returns the decimal string without currency code.
// Money{Units: 123457, Scale: 4} formats as "12.3457".
func (m Money) Format() string {
	if m.Scale == 0 {
		return strconv.FormatInt(m.Units, 10)
	}

	units := m.Units
	neg := units < 0
	if neg {
		units = -units
	}

	div := int64(1)
	for i := 0; i < m.Scale; i++ {
		div *= 10
	}

	result := fmt.Sprintf("%d.%0*d", units/div, m.Scale, units%div)
	if neg {
		return "-" + result
	}
	return result
}

// String returns a human-readable string like "12.3457 RUB".
func (m Money) String() string {
	return m.Format() + " " + m.Currency
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Units    int64  `json:"units"`
		Scale    int    `json:"scale"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Units:    m.Units,
		Scale:    m.Scale,
		Currency: m.Currency,
		Display:  m.Format(),
	})
}

// Helper functions

// assertCompatible panics if currencies or scales don't match.
func (m Money) assertCompatible(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
	if m.Scale != other.Scale {
		panic(fmt.Sprintf("money: scale mismatch: %d != %d", m.Scale, other.Scale))
	}
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Sum calculates the sum of multiple Money values. All must share
// currency and scale.
func Sum(values ...Money) Money {
	if len(values) == 0 {
		return Money{}
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}
