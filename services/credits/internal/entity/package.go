package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditPackage is a purchasable bundle of credits. Bonus credits are granted
// on top of the base amount.
type CreditPackage struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BaseCredits  decimal.Decimal `json:"base_credits"`
	BonusCredits decimal.Decimal `json:"bonus_credits"`
	PriceCents   int64           `json:"price_cents"`
	Currency     string          `json:"currency"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (p *CreditPackage) TotalCredits() decimal.Decimal {
	return p.BaseCredits.Add(p.BonusCredits)
}

// Price returns the package price as a decimal in major currency units,
// the form the payment gateway reports amounts in.
func (p *CreditPackage) Price() decimal.Decimal {
	return decimal.NewFromInt(p.PriceCents).Div(decimal.NewFromInt(100))
}
