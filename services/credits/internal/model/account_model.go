package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountModel struct {
	UserID      string          `gorm:"type:uuid;primary_key" json:"user_id"`
	Balance     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`
	Version     int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
}

func (AccountModel) TableName() string {
	return "accounts"
}
