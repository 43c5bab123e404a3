package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionModel struct {
	ID           string          `gorm:"type:uuid;primary_key" json:"id"`
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Type         string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Description  string          `gorm:"type:text" json:"description"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	Metadata     []byte          `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

func (TransactionModel) TableName() string {
	return "transactions"
}

func (t *TransactionModel) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
