package entity

import (
	"github.com/shopspring/decimal"
)

// Balance is an immutable non-negative credit amount. All arithmetic returns
// a new value; a Balance can never be constructed or mutated into a negative
// state. Amounts are decimals so fractional credit costs (0.5 per image)
// round-trip exactly.
type Balance struct {
	amount decimal.Decimal
}

func NewBalance(amount decimal.Decimal) (Balance, error) {
	if amount.IsNegative() {
		return Balance{}, NewValidationError("balance", "must not be negative")
	}
	return Balance{amount: amount}, nil
}

func ZeroBalance() Balance {
	return Balance{amount: decimal.Zero}
}

func (b Balance) Amount() decimal.Decimal {
	return b.amount
}

func (b Balance) LessThan(amount decimal.Decimal) bool {
	return b.amount.LessThan(amount)
}

// Deduct returns a new Balance reduced by amount. Deducting below zero or by
// a non-positive amount is an error; the receiver is never changed.
func (b Balance) Deduct(amount decimal.Decimal) (Balance, error) {
	if !amount.IsPositive() {
		return Balance{}, NewValidationError("amount", "must be positive")
	}
	result := b.amount.Sub(amount)
	if result.IsNegative() {
		return Balance{}, NewValidationError("amount", "exceeds available balance")
	}
	return Balance{amount: result}, nil
}

// Add returns a new Balance increased by amount.
func (b Balance) Add(amount decimal.Decimal) (Balance, error) {
	if !amount.IsPositive() {
		return Balance{}, NewValidationError("amount", "must be positive")
	}
	return Balance{amount: b.amount.Add(amount)}, nil
}

func (b Balance) String() string {
	return b.amount.StringFixed(2)
}
