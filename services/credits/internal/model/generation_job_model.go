package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GenerationJobModel struct {
	ID                 string          `gorm:"type:uuid;primary_key" json:"id"`
	UserID             string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Status             string          `gorm:"type:varchar(20);not null;index" json:"status"`
	Cost               decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"cost"`
	SpendTransactionID string          `gorm:"type:uuid;not null" json:"spend_transaction_id"`
	Prompt             string          `gorm:"type:text;not null" json:"prompt"`
	Count              int             `gorm:"not null" json:"count"`
	Size               string          `gorm:"type:varchar(20);not null" json:"size"`
	FailureReason      string          `gorm:"type:text" json:"failure_reason,omitempty"`
	ArtifactURLs       []byte          `gorm:"type:jsonb" json:"artifact_urls,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (GenerationJobModel) TableName() string {
	return "generation_jobs"
}

func (j *GenerationJobModel) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}
