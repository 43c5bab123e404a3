package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/gateway"
	"pixelmint/services/credits/internal/repo/persistent"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type GenerationStatus string

const (
	GenerationCompleted           GenerationStatus = "completed"
	GenerationInsufficientCredits GenerationStatus = "insufficient_credits"
	GenerationFailedRefunded      GenerationStatus = "failed_refunded"
)

// GenerationResult is the outcome of one paid generation attempt.
type GenerationResult struct {
	Status        GenerationStatus
	JobID         string
	TransactionID string
	CreditsSpent  decimal.Decimal
	NewBalance    decimal.Decimal
	Required      decimal.Decimal
	Available     decimal.Decimal
	ArtifactURLs  []string
	FailureReason string
}

type GenerationUseCase interface {
	Generate(ctx context.Context, userID string, req entity.GenerationRequest) (*GenerationResult, error)
}

// generationUseCase orchestrates the spend saga: deduct credits, record the
// spend and its reserved job marker in one commit, call the image provider,
// then settle or compensate. The marker is durable before the external call,
// so a crash mid-flight always leaves something for the reconciler to find.
type generationUseCase struct {
	ledgerRepo        persistent.LedgerRepository
	jobRepo           persistent.GenerationJobRepository
	generator         gateway.GenerationClient
	artifacts         gateway.ArtifactStore
	publisher         EventPublisher
	redisClient       *redis.Client
	logger            *logger.Logger
	maxRetries        int
	generationTimeout time.Duration
}

func NewGenerationUseCase(
	ledgerRepo persistent.LedgerRepository,
	jobRepo persistent.GenerationJobRepository,
	generator gateway.GenerationClient,
	artifacts gateway.ArtifactStore,
	publisher EventPublisher,
	redisClient *redis.Client,
	log *logger.Logger,
	maxRetries int,
	generationTimeout time.Duration,
) GenerationUseCase {
	return &generationUseCase{
		ledgerRepo:        ledgerRepo,
		jobRepo:           jobRepo,
		generator:         generator,
		artifacts:         artifacts,
		publisher:         publisher,
		redisClient:       redisClient,
		logger:            log,
		maxRetries:        maxRetries,
		generationTimeout: generationTimeout,
	}
}

func (uc *generationUseCase) Generate(ctx context.Context, userID string, req entity.GenerationRequest) (*GenerationResult, error) {
	if err := ValidateGenerationRequest(req); err != nil {
		return nil, err
	}

	cost := GenerationCost(req)
	reason := fmt.Sprintf("generation: %d %s image(s)", req.Count, req.Size)
	jobID := uuid.New().String()

	account, result, err := applyWithRetry(uc.ledgerRepo, userID, uc.maxRetries,
		func(account *entity.Account) (*entity.TransactionResult, error) {
			return account.DeductCredits(cost, reason)
		},
		func(account *entity.Account, expectedVersion int64, result *entity.TransactionResult) error {
			spend := &entity.Transaction{
				ID:           result.TransactionID,
				UserID:       userID,
				Type:         entity.TransactionTypeSpend,
				Amount:       cost.Neg(),
				Description:  reason,
				BalanceAfter: result.NewBalance,
				Metadata: map[string]string{
					entity.MetaGenerationJobID: jobID,
				},
				CreatedAt: time.Now(),
			}
			job := &entity.GenerationJob{
				ID:                 jobID,
				UserID:             userID,
				Status:             entity.JobStatusReserved,
				Cost:               cost,
				SpendTransactionID: result.TransactionID,
				Prompt:             req.Prompt,
				Count:              req.Count,
				Size:               req.Size,
				CreatedAt:          time.Now(),
				UpdatedAt:          time.Now(),
			}
			return uc.ledgerRepo.SaveSpend(account, expectedVersion, spend, job)
		})
	if err != nil {
		return nil, err
	}

	if result.Insufficient {
		uc.logger.Info("Insufficient credits for user %s: required %s, available %s",
			userID, result.Required.StringFixed(2), result.Available.StringFixed(2))
		return &GenerationResult{
			Status:    GenerationInsufficientCredits,
			Required:  result.Required,
			Available: result.Available,
		}, nil
	}

	forwardEvents(account, uc.publisher, uc.logger)
	invalidateBalanceCache(ctx, uc.redisClient, userID, uc.logger)

	// Credits are already deducted, so the saga must reach a settle or a
	// refund even if the caller hangs up. The provider call is detached from
	// the request's cancellation and bounded only by the configured timeout.
	sagaCtx := context.WithoutCancel(ctx)
	genCtx, cancel := context.WithTimeout(sagaCtx, uc.generationTimeout)
	defer cancel()

	images, err := uc.generator.Generate(genCtx, req)
	if err != nil {
		uc.logger.Warn("Generation failed for job %s: %v", jobID, err)
		return uc.compensate(sagaCtx, userID, jobID, result.TransactionID, cost, err.Error())
	}

	urls, err := uc.artifacts.Store(userID, jobID, images)
	if err != nil {
		uc.logger.Error("Failed to store artifacts for job %s: %v", jobID, err)
		return uc.compensate(sagaCtx, userID, jobID, result.TransactionID, cost, "artifact storage failed")
	}

	uc.persistDelivery(jobID, urls)

	return &GenerationResult{
		Status:        GenerationCompleted,
		JobID:         jobID,
		TransactionID: result.TransactionID,
		CreditsSpent:  cost,
		NewBalance:    result.NewBalance,
		ArtifactURLs:  urls,
	}, nil
}

// persistDelivery records the artifact URLs on the marker and then settles
// it, each with bounded retries. URLs go first: a job carrying them is proof
// of delivered work, so even a lost settle update cannot make the reconciler
// refund it.
func (uc *generationUseCase) persistDelivery(jobID string, urls []string) {
	if err := retryJobUpdate(uc.maxRetries, func() error {
		return uc.jobRepo.RecordArtifacts(jobID, urls)
	}); err != nil {
		uc.logger.Error("Failed to record artifacts for delivered job %s: %v", jobID, err)
	}
	if err := retryJobUpdate(uc.maxRetries, func() error {
		return uc.jobRepo.MarkSettled(jobID)
	}); err != nil {
		uc.logger.Error("Failed to settle delivered job %s: %v", jobID, err)
	}
}

// compensate refunds a failed spend and closes its job marker in one commit.
// If the refund cannot be committed the marker is left reserved for the
// reconciler and ErrReconciliationRequired is returned; credits are never
// silently lost.
func (uc *generationUseCase) compensate(ctx context.Context, userID, jobID, spendTransactionID string, cost decimal.Decimal, failureReason string) (*GenerationResult, error) {
	refundReason := "compensation: " + failureReason

	account, result, err := applyWithRetry(uc.ledgerRepo, userID, uc.maxRetries,
		func(account *entity.Account) (*entity.TransactionResult, error) {
			return account.AddCredits(cost, refundReason)
		},
		func(account *entity.Account, expectedVersion int64, result *entity.TransactionResult) error {
			refund := &entity.Transaction{
				ID:           result.TransactionID,
				UserID:       userID,
				Type:         entity.TransactionTypeRefund,
				Amount:       cost,
				Description:  refundReason,
				BalanceAfter: result.NewBalance,
				Metadata: map[string]string{
					entity.MetaGenerationJobID: jobID,
					entity.MetaCompensatesTx:   spendTransactionID,
				},
				CreatedAt: time.Now(),
			}
			return uc.ledgerRepo.SaveRefund(account, expectedVersion, refund, jobID, failureReason)
		})
	if err != nil {
		if errors.Is(err, entity.ErrJobNotReserved) {
			// A reconciler sweep compensated this job first; its commit
			// carried the refund, so only report the restored balance.
			uc.logger.Info("Job %s was already compensated by the reconciler", jobID)
			current, loadErr := uc.ledgerRepo.GetOrCreateAccount(userID)
			if loadErr != nil {
				return nil, loadErr
			}
			return &GenerationResult{
				Status:        GenerationFailedRefunded,
				JobID:         jobID,
				NewBalance:    current.Balance(),
				FailureReason: failureReason,
			}, nil
		}
		uc.logger.Error("Compensation for job %s could not be committed, leaving it to the reconciler: %v", jobID, err)
		return nil, fmt.Errorf("%w: job %s", entity.ErrReconciliationRequired, jobID)
	}

	forwardEvents(account, uc.publisher, uc.logger)
	invalidateBalanceCache(ctx, uc.redisClient, userID, uc.logger)

	uc.logger.Info("Refunded %s credits to user %s for failed job %s", cost.StringFixed(2), userID, jobID)
	return &GenerationResult{
		Status:        GenerationFailedRefunded,
		JobID:         jobID,
		TransactionID: result.TransactionID,
		NewBalance:    result.NewBalance,
		FailureReason: failureReason,
	}, nil
}
