package persistent

import (
	"encoding/json"

	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/model"
)

func ToAccountEntity(m *model.AccountModel) (*entity.Account, error) {
	if m == nil {
		return nil, nil
	}
	return entity.RestoreAccount(m.UserID, m.Balance, m.Version, m.CreatedAt, m.LastUpdated)
}

func ToTransactionEntity(m *model.TransactionModel) *entity.Transaction {
	if m == nil {
		return nil
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 {
		// Metadata written by this service is always a flat string map
		_ = json.Unmarshal(m.Metadata, &metadata)
	}

	return &entity.Transaction{
		ID:           m.ID,
		UserID:       m.UserID,
		Type:         entity.TransactionType(m.Type),
		Amount:       m.Amount,
		Description:  m.Description,
		BalanceAfter: m.BalanceAfter,
		Metadata:     metadata,
		CreatedAt:    m.CreatedAt,
	}
}

func ToTransactionModel(e *entity.Transaction) (*model.TransactionModel, error) {
	if e == nil {
		return nil, nil
	}

	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
	}

	return &model.TransactionModel{
		ID:           e.ID,
		UserID:       e.UserID,
		Type:         string(e.Type),
		Amount:       e.Amount,
		Description:  e.Description,
		BalanceAfter: e.BalanceAfter,
		Metadata:     metadata,
		CreatedAt:    e.CreatedAt,
	}, nil
}

func ToGenerationJobEntity(m *model.GenerationJobModel) *entity.GenerationJob {
	if m == nil {
		return nil
	}

	var artifactURLs []string
	if len(m.ArtifactURLs) > 0 {
		_ = json.Unmarshal(m.ArtifactURLs, &artifactURLs)
	}

	return &entity.GenerationJob{
		ID:                 m.ID,
		UserID:             m.UserID,
		Status:             entity.JobStatus(m.Status),
		Cost:               m.Cost,
		SpendTransactionID: m.SpendTransactionID,
		Prompt:             m.Prompt,
		Count:              m.Count,
		Size:               m.Size,
		FailureReason:      m.FailureReason,
		ArtifactURLs:       artifactURLs,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func ToGenerationJobModel(e *entity.GenerationJob) *model.GenerationJobModel {
	if e == nil {
		return nil
	}

	var artifactURLs []byte
	if len(e.ArtifactURLs) > 0 {
		artifactURLs, _ = json.Marshal(e.ArtifactURLs)
	}

	return &model.GenerationJobModel{
		ID:                 e.ID,
		UserID:             e.UserID,
		Status:             string(e.Status),
		Cost:               e.Cost,
		SpendTransactionID: e.SpendTransactionID,
		Prompt:             e.Prompt,
		Count:              e.Count,
		Size:               e.Size,
		FailureReason:      e.FailureReason,
		ArtifactURLs:       artifactURLs,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func ToCreditPackageEntity(m *model.CreditPackageModel) *entity.CreditPackage {
	if m == nil {
		return nil
	}

	return &entity.CreditPackage{
		ID:           m.ID,
		Name:         m.Name,
		BaseCredits:  m.BaseCredits,
		BonusCredits: m.BonusCredits,
		PriceCents:   m.PriceCents,
		Currency:     m.Currency,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
	}
}
