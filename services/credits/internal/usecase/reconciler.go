package usecase

import (
	"context"
	"errors"
	"time"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/repo/persistent"

	"github.com/redis/go-redis/v9"
)

const reconcilerBatchSize = 50

// Reconciler sweeps generation jobs stuck in reserved: a crash between
// deduction and settlement, or a failed in-line refund, leaves such a marker
// behind. Each stale job is refunded exactly once; if a refund for the job is
// already in the ledger the marker is simply closed.
type Reconciler struct {
	ledgerRepo  persistent.LedgerRepository
	jobRepo     persistent.GenerationJobRepository
	publisher   EventPublisher
	redisClient *redis.Client
	logger      *logger.Logger
	interval    time.Duration
	staleAge    time.Duration
	maxRetries  int
}

func NewReconciler(
	ledgerRepo persistent.LedgerRepository,
	jobRepo persistent.GenerationJobRepository,
	publisher EventPublisher,
	redisClient *redis.Client,
	log *logger.Logger,
	interval, staleAge time.Duration,
	maxRetries int,
) *Reconciler {
	return &Reconciler{
		ledgerRepo:  ledgerRepo,
		jobRepo:     jobRepo,
		publisher:   publisher,
		redisClient: redisClient,
		logger:      log,
		interval:    interval,
		staleAge:    staleAge,
		maxRetries:  maxRetries,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("Reconciler started (interval %s, stale age %s)", r.interval, r.staleAge)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Reconciler sweep failed: %v", err)
			} else if n > 0 {
				r.logger.Info("Reconciler compensated %d stale job(s)", n)
			}
		}
	}
}

// Sweep compensates one batch of stale reserved jobs and returns how many it
// resolved. Individual job failures are logged and skipped so one poisoned
// row cannot stall the rest of the batch.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.jobRepo.ListStaleReserved(time.Now().Add(-r.staleAge), reconcilerBatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, job := range stale {
		if err := r.reconcile(ctx, job); err != nil {
			r.logger.Error("Failed to reconcile job %s: %v", job.ID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (r *Reconciler) reconcile(ctx context.Context, job *entity.GenerationJob) error {
	// Recorded artifact URLs mean the work was delivered and only the settle
	// update was lost. Close the marker as settled; never refund paid-out work.
	if len(job.ArtifactURLs) > 0 {
		if err := r.jobRepo.MarkSettled(job.ID); err != nil {
			if errors.Is(err, entity.ErrJobNotReserved) {
				return nil
			}
			return err
		}
		r.logger.Warn("Settled stale job %s during sweep: artifacts were already delivered", job.ID)
		return nil
	}

	// A refund without a closed marker can only predate the atomic
	// compensation commit. Closing the marker is then all that is left to do.
	refund, err := r.ledgerRepo.FindRefundForJob(job.ID)
	if err != nil {
		return err
	}
	if refund != nil {
		err := r.jobRepo.MarkCompensated(job.ID, "reconciled: refund already recorded")
		if errors.Is(err, entity.ErrJobNotReserved) {
			return nil
		}
		return err
	}

	reason := "compensation: reconciled stale generation job"
	account, _, err := applyWithRetry(r.ledgerRepo, job.UserID, r.maxRetries,
		func(account *entity.Account) (*entity.TransactionResult, error) {
			return account.AddCredits(job.Cost, reason)
		},
		func(account *entity.Account, expectedVersion int64, result *entity.TransactionResult) error {
			refund := &entity.Transaction{
				ID:           result.TransactionID,
				UserID:       job.UserID,
				Type:         entity.TransactionTypeRefund,
				Amount:       job.Cost,
				Description:  reason,
				BalanceAfter: result.NewBalance,
				Metadata: map[string]string{
					entity.MetaGenerationJobID: job.ID,
					entity.MetaCompensatesTx:   job.SpendTransactionID,
				},
				CreatedAt: time.Now(),
			}
			return r.ledgerRepo.SaveRefund(account, expectedVersion, refund, job.ID, "reconciled: generation never settled")
		})
	if err != nil {
		if errors.Is(err, entity.ErrJobNotReserved) {
			// Another compensator committed between the listing and this
			// commit; its transaction carried the refund.
			return nil
		}
		return err
	}

	forwardEvents(account, r.publisher, r.logger)
	invalidateBalanceCache(ctx, r.redisClient, job.UserID, r.logger)

	r.logger.Warn("Reconciled stale job %s: refunded %s credits to user %s",
		job.ID, job.Cost.StringFixed(2), job.UserID)
	return nil
}
