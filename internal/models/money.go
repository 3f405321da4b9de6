package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money is the uniform amount type (2 decimal places, INR).
type Money struct {
	decimal.Decimal
}

// NewMoneyFromDecimal creates an amount from a decimal.
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// NewMoneyFromInt creates an amount from whole rupees.
func NewMoneyFromInt(amount int64) Money {
	return Money{Decimal: decimal.NewFromInt(amount)}
}

// Paise returns the amount in minor units as expected by the gateway.
func (m Money) Paise() int64 {
	return m.Decimal.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Decimal.IsZero()
}

// MarshalJSON renders the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.Round(2).StringFixed(2))
}

// UnmarshalJSON parses an amount from a string or a number.
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		m.Decimal = d.Round(2)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	m.Decimal = decimal.NewFromFloat(f).Round(2)
	return nil
}

// Value implements database writing.
func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(2).Value()
}

// Scan implements database reading.
func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(2)
	return nil
}

// String returns the fixed two-decimal representation.
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}
