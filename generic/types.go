/*
Package generic provides the domain-agnostic primitives of the leave engine.

PURPOSE:
  Quantities, calendar dates, movement journal entries and errors that do
  not know anything about leave types, applications or approval flows.
  The leave package builds its ledger and state machine on top of these.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A day quantity with one-decimal precision (0.5 = half day)
  - Transaction: An immutable journal entry recording one balance movement
  - Entity IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Rounding: Every stored quantity is rounded to one decimal place
  3. Immutability: Journal entries are never modified, only compensated

USAGE:
  half := generic.NewDays(0.5)
  total := generic.DaysFromInt(2).Add(half) // 2.5

SEE ALSO:
  - time.go: Calendar dates
  - journal.go: Movement journal
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Leave quantity rounded to one decimal
// =============================================================================

// Precision is the number of decimal places kept for every day quantity.
const Precision = 1

// Days is a non-integral day count. The zero value is 0 days.
type Days struct {
	Value decimal.Decimal
}

func NewDays(value float64) Days {
	return Days{Value: decimal.NewFromFloat(value).Round(Precision)}
}

func DaysFromInt(value int) Days {
	return Days{Value: decimal.NewFromInt(int64(value))}
}

// ParseDays parses a decimal string such as "1.5".
func ParseDays(s string) (Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Days{}, fmt.Errorf("invalid day quantity %q: %w", s, err)
	}
	return Days{Value: d.Round(Precision)}, nil
}

func MustParseDays(s string) Days {
	d, err := ParseDays(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Days) Add(o Days) Days         { return Days{Value: d.Value.Add(o.Value).Round(Precision)} }
func (d Days) Sub(o Days) Days         { return Days{Value: d.Value.Sub(o.Value).Round(Precision)} }
func (d Days) MulInt(n int) Days       { return Days{Value: d.Value.Mul(decimal.NewFromInt(int64(n))).Round(Precision)} }
func (d Days) Neg() Days               { return Days{Value: d.Value.Neg()} }
func (d Days) Round() Days             { return Days{Value: d.Value.Round(Precision)} }
func (d Days) IsZero() bool            { return d.Value.IsZero() }
func (d Days) IsNegative() bool        { return d.Value.IsNegative() }
func (d Days) IsPositive() bool        { return d.Value.IsPositive() }
func (d Days) Equal(o Days) bool       { return d.Value.Equal(o.Value) }
func (d Days) LessThan(o Days) bool    { return d.Value.LessThan(o.Value) }
func (d Days) GreaterThan(o Days) bool { return d.Value.GreaterThan(o.Value) }

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

func (d Days) Max(o Days) Days {
	if d.GreaterThan(o) {
		return d
	}
	return o
}

// ClampZero returns d, or 0 when d is negative.
func (d Days) ClampZero() Days {
	if d.IsNegative() {
		return Days{}
	}
	return d
}

func (d Days) Float64() float64 {
	f, _ := d.Value.Round(Precision).Float64()
	return f
}

// Tenths is the quantity as an integer count of tenths (2.5 -> 25).
// Stores that need exact conditional arithmetic persist this form.
func (d Days) Tenths() int64 {
	return d.Value.Round(Precision).Shift(Precision).IntPart()
}

func DaysFromTenths(n int64) Days {
	return Days{Value: decimal.New(n, -Precision)}
}

func (d Days) String() string {
	return d.Value.Round(Precision).String()
}

// MarshalJSON writes the quantity as a bare JSON number.
func (d Days) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted decimal strings.
func (d *Days) UnmarshalJSON(data []byte) error {
	var v decimal.Decimal
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	d.Value = v.Round(Precision)
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type TransactionID string

// =============================================================================
// TRANSACTION - One journaled balance movement
// =============================================================================

type TransactionType string

const (
	TxGrant          TransactionType = "grant"          // Scheduled credit (monthly job)
	TxConsumption    TransactionType = "consumption"    // Debit for an approved application
	TxReversal       TransactionType = "reversal"       // Refund of a previous debit
	TxAdjustment     TransactionType = "adjustment"     // Manual admin correction
	TxReconciliation TransactionType = "reconciliation" // Balance rebuilt from policy
)

// Transaction records a signed increment applied to one resource balance of
// one entity. Delta is positive for credits and refunds.
type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	Resource       string
	Delta          Days
	BalanceAfter   Days
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}
