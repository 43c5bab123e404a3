package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	// JobStatusReserved means credits are deducted but the paid work has not
	// settled yet. Stale reserved jobs are swept by the reconciler.
	JobStatusReserved    JobStatus = "reserved"
	JobStatusSettled     JobStatus = "settled"
	JobStatusCompensated JobStatus = "compensated"
)

// GenerationRequest describes one paid image-generation command.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
	Size   string `json:"size"`
}

// GenerationJob is the durable saga marker for one spend. It is written with
// status reserved before the external generation call so that a crash between
// deduction and settlement leaves a record to reconcile from.
type GenerationJob struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Status             JobStatus       `json:"status"`
	Cost               decimal.Decimal `json:"cost"`
	SpendTransactionID string          `json:"spend_transaction_id"`
	Prompt             string          `json:"prompt"`
	Count              int             `json:"count"`
	Size               string          `json:"size"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	ArtifactURLs       []string        `json:"artifact_urls,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
