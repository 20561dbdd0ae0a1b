package values

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// The platform trades in one currency, denominated in integer minor units
// (cents). Every balance and price in the system is an int64 count of minor
// units; decimals exist only at the API boundary.
const (
	// MinorUnitsPerMajor is the number of minor units in one major unit.
	MinorUnitsPerMajor = 100

	// MinBidFloorMinor is the platform-wide floor for bid amounts and
	// auction price fields.
	MinBidFloorMinor int64 = 100
)

// Money represents a non-negative monetary amount in integer minor units.
type Money struct {
	minor int64
}

// NewMoneyFromMinor creates Money from an integer count of minor units.
func NewMoneyFromMinor(minor int64) (Money, error) {
	if minor < 0 {
		return Money{}, fmt.Errorf("money cannot be negative: %d", minor)
	}
	return Money{minor: minor}, nil
}

// MustNewMoneyFromMinor creates Money and panics on error (for constants/tests)
func MustNewMoneyFromMinor(minor int64) Money {
	m, err := NewMoneyFromMinor(minor)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney parses a decimal amount string (e.g. "12.50") into Money.
// Sub-minor precision is rejected rather than rounded: callers must send
// whole minor units.
func ParseMoney(amount string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}
	minorDec := dec.Mul(decimal.NewFromInt(MinorUnitsPerMajor))
	if !minorDec.IsInteger() {
		return Money{}, fmt.Errorf("amount %s has sub-minor precision", amount)
	}
	return NewMoneyFromMinor(minorDec.IntPart())
}

// Zero returns a zero Money value.
func Zero() Money {
	return Money{}
}

// Minor returns the amount as integer minor units.
func (m Money) Minor() int64 {
	return m.minor
}

// String returns the decimal representation (e.g. "12.50").
func (m Money) String() string {
	return decimal.New(m.minor, -2).StringFixed(2)
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// Equal checks if two Money values are equal
func (m Money) Equal(other Money) bool {
	return m.minor == other.minor
}

// Compare returns -1, 0, or 1 based on comparison with other Money
func (m Money) Compare(other Money) int {
	switch {
	case m.minor < other.minor:
		return -1
	case m.minor > other.minor:
		return 1
	default:
		return 0
	}
}

// Add returns the sum of two Money values
func (m Money) Add(other Money) Money {
	return Money{minor: m.minor + other.minor}
}

// Sub returns the difference of two Money values; an error is returned if
// the result would be negative.
func (m Money) Sub(other Money) (Money, error) {
	if other.minor > m.minor {
		return Money{}, fmt.Errorf("insufficient amount: %d - %d would be negative", m.minor, other.minor)
	}
	return Money{minor: m.minor - other.minor}, nil
}

// MarshalJSON implements json.Marshaler, emitting the decimal string form.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting a decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("money must be a decimal string: %w", err)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
