package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditPackageModel struct {
	ID           string          `gorm:"type:varchar(40);primary_key" json:"id"`
	Name         string          `gorm:"type:varchar(100);not null" json:"name"`
	BaseCredits  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_credits"`
	BonusCredits decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"bonus_credits"`
	PriceCents   int64           `gorm:"not null" json:"price_cents"`
	Currency     string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Active       bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (CreditPackageModel) TableName() string {
	return "credit_packages"
}
