// Package core provides money parsing and handling utilities.
//
// Money wraps an exact decimal rounded half-up to two places. Every amount
// enters the system through NewMoney, ParseAmount or JSON decoding, so the
// delta computed when a transaction is added is identical to the one reversed
// when it is edited or deleted.
package core

import (
	"encoding/json"
	"errors"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var ErrInvalidAmount = errors.New("invalid amount")

type Money struct {
	amount decimal.Decimal
}

// NewMoney rounds d to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{amount: d.Round(moneyPlaces)}
}

// MoneyFromCents builds a Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -moneyPlaces)}
}

// MustMoney parses s and panics on error. Meant for literals in seeds and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("core: invalid money literal " + s)
	}
	return NewMoney(d)
}

// ParseAmount converts a user-entered decimal string to a positive Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Signs are rejected: the sign of a
// ledger movement comes from the transaction kind, never from the amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	d, err := parseDecimal(s, false)
	if err != nil {
		return Money{}, err
	}
	m := NewMoney(d)
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// parseDecimal holds the syntax shared by ParseAmount and JSON decoding.
// Exponents and a leading plus are never accepted; a leading minus only
// when signed is set.
func parseDecimal(s string, signed bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || (!signed && strings.HasPrefix(s, "-")) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// Validate checks the amount is usable as a transaction amount.
func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{amount: m.amount.Add(o.amount)} }
func (m Money) Sub(o Money) Money { return Money{amount: m.amount.Sub(o.amount)} }
func (m Money) Neg() Money { return Money{amount: m.amount.Neg()} }

func (m Money) IsZero() bool { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) Cmp(o Money) int { return m.amount.Cmp(o.amount) }
func (m Money) Equal(o Money) bool { return m.amount.Equal(o.amount) }
func (m Money) Decimal() decimal.Decimal { return m.amount }

// Cents returns the amount as an integer number of cents.
func (m Money) Cents() int64 {
	return m.amount.Shift(moneyPlaces).IntPart()
}

func (m Money) String() string {
	return m.amount.StringFixed(moneyPlaces)
}

// Display formats the amount for humans in the given ISO currency code.
func (m Money) Display(code string) string {
	return gomoney.New(m.Cents(), code).Display()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers, with the
// syntax ParseAmount uses except that negative values are allowed.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidAmount
		}
	}
	d, err := parseDecimal(s, true)
	if err != nil {
		return err
	}
	*m = NewMoney(d)
	return nil
}
