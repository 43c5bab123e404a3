package usecase

import (
	"context"
	"encoding/json"
	"time"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/repo/persistent"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const recentTransactionsLimit = 10

// BalanceSummary is the read model for the balance endpoint.
type BalanceSummary struct {
	UserID             string                `json:"user_id"`
	Balance            decimal.Decimal       `json:"balance"`
	LastUpdated        time.Time             `json:"last_updated"`
	RecentTransactions []*entity.Transaction `json:"recent_transactions"`
}

type BalanceUseCase interface {
	GetBalance(ctx context.Context, userID string) (*BalanceSummary, error)
	GetTransactions(userID string, limit, offset int) ([]*entity.Transaction, error)
}

// balanceUseCase serves reads through a short-lived Redis cache. Writers
// invalidate the key after every commit; the TTL bounds staleness when an
// invalidation is lost.
type balanceUseCase struct {
	ledgerRepo  persistent.LedgerRepository
	redisClient *redis.Client
	logger      *logger.Logger
}

func NewBalanceUseCase(ledgerRepo persistent.LedgerRepository, redisClient *redis.Client, log *logger.Logger) BalanceUseCase {
	return &balanceUseCase{
		ledgerRepo:  ledgerRepo,
		redisClient: redisClient,
		logger:      log,
	}
}

func (uc *balanceUseCase) GetBalance(ctx context.Context, userID string) (*BalanceSummary, error) {
	if userID == "" {
		return nil, entity.NewValidationError("user_id", "must not be empty")
	}

	if cached := uc.fromCache(ctx, userID); cached != nil {
		return cached, nil
	}

	account, err := uc.ledgerRepo.GetOrCreateAccount(userID)
	if err != nil {
		return nil, err
	}
	recent, err := uc.ledgerRepo.RecentTransactions(userID, recentTransactionsLimit, 0)
	if err != nil {
		return nil, err
	}

	summary := &BalanceSummary{
		UserID:             userID,
		Balance:            account.Balance(),
		LastUpdated:        account.LastUpdated,
		RecentTransactions: recent,
	}
	uc.toCache(ctx, userID, summary)
	return summary, nil
}

func (uc *balanceUseCase) GetTransactions(userID string, limit, offset int) ([]*entity.Transaction, error) {
	if userID == "" {
		return nil, entity.NewValidationError("user_id", "must not be empty")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.ledgerRepo.RecentTransactions(userID, limit, offset)
}

func (uc *balanceUseCase) fromCache(ctx context.Context, userID string) *BalanceSummary {
	if uc.redisClient == nil {
		return nil
	}
	raw, err := uc.redisClient.Get(ctx, balanceCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			uc.logger.Warn("Balance cache read failed for user %s: %v", userID, err)
		}
		return nil
	}
	var summary BalanceSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil
	}
	return &summary
}

func (uc *balanceUseCase) toCache(ctx context.Context, userID string, summary *BalanceSummary) {
	if uc.redisClient == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := uc.redisClient.Set(ctx, balanceCacheKey(userID), raw, balanceCacheTTL).Err(); err != nil {
		uc.logger.Warn("Balance cache write failed for user %s: %v", userID, err)
	}
}
