package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/repo/persistent"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// EventPublisher forwards domain events to the message broker.
type EventPublisher interface {
	PublishCreditEvent(event interface{}) error
}

type mutateFn func(account *entity.Account) (*entity.TransactionResult, error)

// persistFn commits the mutated account together with its ledger entry.
// expectedVersion is the version the account was loaded at.
type persistFn func(account *entity.Account, expectedVersion int64, result *entity.TransactionResult) error

// applyWithRetry runs the load / mutate / conditional-save loop. On a version
// conflict it reloads the account and re-runs the business decision against
// fresh state; stale results are never merged. Backoff between attempts is
// jittered so two instances retrying the same account do not collide again.
//
// An insufficient result short-circuits before persisting: nothing changed,
// so there is nothing to save. Exhausted retries surface ErrRetriesExhausted.
func applyWithRetry(repo persistent.LedgerRepository, userID string, maxRetries int, mutate mutateFn, persist persistFn) (*entity.Account, *entity.TransactionResult, error) {
	var account *entity.Account
	var result *entity.TransactionResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	operation := func() error {
		loaded, err := repo.GetOrCreateAccount(userID)
		if err != nil {
			return backoff.Permanent(err)
		}

		res, err := mutate(loaded)
		if err != nil {
			return backoff.Permanent(err)
		}
		if res.Insufficient {
			account, result = loaded, res
			return nil
		}

		if err := persist(loaded, loaded.Version, res); err != nil {
			if errors.Is(err, entity.ErrVersionConflict) {
				return err
			}
			return backoff.Permanent(err)
		}

		account, result = loaded, res
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithMaxRetries(bo, uint64(maxRetries))); err != nil {
		if errors.Is(err, entity.ErrVersionConflict) {
			return nil, nil, fmt.Errorf("%w after %d attempts", entity.ErrRetriesExhausted, maxRetries+1)
		}
		return nil, nil, err
	}
	return account, result, nil
}

// retryJobUpdate retries a marker update with the same bounded jittered
// backoff as the save loop. ErrJobNotReserved is terminal: the marker was
// already closed by another writer.
func retryJobUpdate(maxRetries int, update func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(func() error {
		if err := update(); err != nil {
			if errors.Is(err, entity.ErrJobNotReserved) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, uint64(maxRetries)))
}

// forwardEvents publishes the account's queued domain events and drains the
// queue. Publishing is best effort: the ledger is the source of truth and a
// broker outage must not fail the money path.
func forwardEvents(account *entity.Account, publisher EventPublisher, log *logger.Logger) {
	for _, event := range account.Events() {
		if publisher == nil {
			continue
		}
		if err := publisher.PublishCreditEvent(event); err != nil {
			log.Error("Failed to publish %s event for user %s: %v", event.Name, event.UserID, err)
		}
	}
	account.ClearEvents()
}

const balanceCacheTTL = 30 * time.Second

func balanceCacheKey(userID string) string {
	return "credits:balance:" + userID
}

func invalidateBalanceCache(ctx context.Context, redisClient *redis.Client, userID string, log *logger.Logger) {
	if redisClient == nil {
		return
	}
	if err := redisClient.Del(ctx, balanceCacheKey(userID)).Err(); err != nil {
		log.Warn("Failed to invalidate balance cache for user %s: %v", userID, err)
	}
}
