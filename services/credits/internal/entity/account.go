package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event names emitted by the account aggregate.
const (
	EventCreditDeducted = "credit_deducted"
	EventCreditRefunded = "credit_refunded"
)

// Event is a domain event describing one balance mutation. The aggregate only
// accumulates event values; forwarding them (queue, log) is the caller's job.
type Event struct {
	Name          string          `json:"name"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// TransactionResult reports the outcome of a deduct or add on the aggregate.
// Insufficient is a business rejection, not an error: the balance is
// unchanged and Required/Available carry the numbers for the caller.
type TransactionResult struct {
	Insufficient    bool
	TransactionID   string
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Required        decimal.Decimal
	Available       decimal.Decimal
}

// Account is the aggregate owning one user's balance. It exposes the only
// legal mutations and stays free of persistence and I/O. Version is the
// optimistic concurrency token; the repository bumps it on save.
type Account struct {
	UserID      string
	Version     int64
	CreatedAt   time.Time
	LastUpdated time.Time

	balance Balance
	events  []Event
}

func NewAccount(userID string, initialBalance decimal.Decimal) (*Account, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "must not be empty")
	}
	balance, err := NewBalance(initialBalance)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Account{
		UserID:      userID,
		Version:     0,
		CreatedAt:   now,
		LastUpdated: now,
		balance:     balance,
	}, nil
}

// RestoreAccount rehydrates an account from storage.
func RestoreAccount(userID string, balance decimal.Decimal, version int64, createdAt, lastUpdated time.Time) (*Account, error) {
	b, err := NewBalance(balance)
	if err != nil {
		return nil, err
	}
	return &Account{
		UserID:      userID,
		Version:     version,
		CreatedAt:   createdAt,
		LastUpdated: lastUpdated,
		balance:     b,
	}, nil
}

func (a *Account) Balance() decimal.Decimal {
	return a.balance.Amount()
}

// DeductCredits removes amount from the balance. An amount larger than the
// balance yields an insufficient result with the balance untouched and no
// event queued.
func (a *Account) DeductCredits(amount decimal.Decimal, reason string) (*TransactionResult, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be positive")
	}

	if a.balance.LessThan(amount) {
		return &TransactionResult{
			Insufficient: true,
			Required:     amount,
			Available:    a.balance.Amount(),
		}, nil
	}

	previous := a.balance.Amount()
	newBalance, err := a.balance.Deduct(amount)
	if err != nil {
		return nil, err
	}
	a.balance = newBalance
	a.LastUpdated = time.Now()

	transactionID := uuid.New().String()
	a.events = append(a.events, Event{
		Name:          EventCreditDeducted,
		UserID:        a.UserID,
		TransactionID: transactionID,
		Amount:        amount,
		Reason:        reason,
		NewBalance:    a.balance.Amount(),
		OccurredAt:    a.LastUpdated,
	})

	return &TransactionResult{
		TransactionID:   transactionID,
		PreviousBalance: previous,
		NewBalance:      a.balance.Amount(),
	}, nil
}

// AddCredits puts amount back on the balance. Adding cannot violate the
// non-negativity invariant, so it only fails on invalid input. Purchases and
// compensation refunds both go through this path.
func (a *Account) AddCredits(amount decimal.Decimal, reason string) (*TransactionResult, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be positive")
	}

	previous := a.balance.Amount()
	newBalance, err := a.balance.Add(amount)
	if err != nil {
		return nil, err
	}
	a.balance = newBalance
	a.LastUpdated = time.Now()

	transactionID := uuid.New().String()
	a.events = append(a.events, Event{
		Name:          EventCreditRefunded,
		UserID:        a.UserID,
		TransactionID: transactionID,
		Amount:        amount,
		Reason:        reason,
		NewBalance:    a.balance.Amount(),
		OccurredAt:    a.LastUpdated,
	})

	return &TransactionResult{
		TransactionID:   transactionID,
		PreviousBalance: previous,
		NewBalance:      a.balance.Amount(),
	}, nil
}

// Events returns the queued domain events in emission order.
func (a *Account) Events() []Event {
	return a.events
}

// ClearEvents drains the queue after the caller has forwarded the events.
func (a *Account) ClearEvents() {
	a.events = nil
}
