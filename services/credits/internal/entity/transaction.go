package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeSpend    TransactionType = "spend"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeBonus    TransactionType = "bonus"
)

// Well-known metadata keys.
const (
	MetaPaymentReference = "payment_reference"
	MetaPackageID        = "package_id"
	MetaCompensatesTx    = "compensates_transaction_id"
	MetaGenerationJobID  = "generation_job_id"
)

// Transaction is one immutable ledger entry. Amount is signed: negative for
// spend, positive for purchase, refund and bonus. Replaying all entries for a
// user in order reconstructs the current balance exactly.
type Transaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Type         TransactionType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	Description  string            `json:"description"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (t *Transaction) PaymentReference() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaPaymentReference]
}
