package persistent

import (
	"encoding/json"
	"fmt"
	"time"

	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/model"

	"gorm.io/gorm"
)

// GenerationJobRepository persists the saga markers for in-flight spends.
type GenerationJobRepository interface {
	Create(job *entity.GenerationJob) error
	RecordArtifacts(jobID string, urls []string) error
	MarkSettled(jobID string) error
	MarkCompensated(jobID, failureReason string) error
	ListStaleReserved(olderThan time.Time, limit int) ([]*entity.GenerationJob, error)
}

type generationJobRepository struct {
	db *gorm.DB
}

func NewGenerationJobRepository(db *gorm.DB) GenerationJobRepository {
	return &generationJobRepository{db: db}
}

func (r *generationJobRepository) Create(job *entity.GenerationJob) error {
	jobModel := ToGenerationJobModel(job)
	if err := r.db.Create(jobModel).Error; err != nil {
		return fmt.Errorf("failed to create generation job: %w", err)
	}
	job.ID = jobModel.ID
	return nil
}

// RecordArtifacts stores the delivered artifact URLs on a still-reserved job.
// It is written before the settle transition, so a job whose settle update was
// lost still carries proof of delivery and is never refunded by the sweep.
func (r *generationJobRepository) RecordArtifacts(jobID string, urls []string) error {
	encoded, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("failed to encode artifact urls: %w", err)
	}

	result := r.db.Model(&model.GenerationJobModel{}).
		Where("id = ? AND status = ?", jobID, string(entity.JobStatusReserved)).
		Updates(map[string]interface{}{
			"artifact_urls": encoded,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record artifacts: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	return nil
}

func (r *generationJobRepository) MarkSettled(jobID string) error {
	return r.setStatus(jobID, entity.JobStatusSettled, "")
}

func (r *generationJobRepository) MarkCompensated(jobID, failureReason string) error {
	return r.setStatus(jobID, entity.JobStatusCompensated, failureReason)
}

// setStatus only transitions jobs out of reserved; settled and compensated
// are terminal, so a concurrent reconciler sweep cannot flip them back.
func (r *generationJobRepository) setStatus(jobID string, status entity.JobStatus, failureReason string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}

	result := r.db.Model(&model.GenerationJobModel{}).
		Where("id = ? AND status = ?", jobID, string(entity.JobStatusReserved)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update generation job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	return nil
}

func (r *generationJobRepository) ListStaleReserved(olderThan time.Time, limit int) ([]*entity.GenerationJob, error) {
	var jobModels []model.GenerationJobModel
	query := r.db.
		Where("status = ? AND updated_at < ?", string(entity.JobStatusReserved), olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	jobs := make([]*entity.GenerationJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = ToGenerationJobEntity(&jobModels[i])
	}
	return jobs, nil
}
