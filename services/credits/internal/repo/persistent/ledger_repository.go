package persistent

import (
	"errors"
	"fmt"
	"time"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the only component touching durable account and
// transaction state. It never caches an account across calls and never holds
// a lock across external I/O; writers race through the version check instead.
//
// SaveSpend, SaveRefund and SaveWithTransaction commit the conditional
// account update and the ledger entry in one database transaction, so the
// balance can never drift from the sum of recorded entries.
type LedgerRepository interface {
	GetOrCreateAccount(userID string) (*entity.Account, error)
	SaveAccount(account *entity.Account, expectedVersion int64) error
	AppendTransaction(transaction *entity.Transaction) error
	SaveWithTransaction(account *entity.Account, expectedVersion int64, transaction *entity.Transaction) error
	SaveSpend(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, job *entity.GenerationJob) error
	SaveRefund(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, jobID, failureReason string) error
	RecentTransactions(userID string, limit, offset int) ([]*entity.Transaction, error)
	FindPurchaseByReference(reference string) (*entity.Transaction, error)
	FindRefundForJob(jobID string) (*entity.Transaction, error)
}

type ledgerRepository struct {
	db              *gorm.DB
	startingBalance decimal.Decimal
	logger          *logger.Logger
}

func NewLedgerRepository(db *gorm.DB, startingBalance decimal.Decimal, log *logger.Logger) LedgerRepository {
	return &ledgerRepository{
		db:              db,
		startingBalance: startingBalance,
		logger:          log,
	}
}

// GetOrCreateAccount loads the account row, creating it at the configured
// starting balance on first access. Creation races with other instances are
// absorbed by ON CONFLICT DO NOTHING plus a re-read.
func (r *ledgerRepository) GetOrCreateAccount(userID string) (*entity.Account, error) {
	var accountModel model.AccountModel
	err := r.db.Where("user_id = ?", userID).First(&accountModel).Error
	if err == nil {
		return ToAccountEntity(&accountModel)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := time.Now()
	accountModel = model.AccountModel{
		UserID:      userID,
		Balance:     r.startingBalance,
		Version:     0,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&accountModel).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// Re-read: another instance may have won the insert
	if err := r.db.Where("user_id = ?", userID).First(&accountModel).Error; err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}

	r.logger.Info("Created account for user %s with starting balance %s", userID, r.startingBalance.StringFixed(2))
	return ToAccountEntity(&accountModel)
}

func (r *ledgerRepository) SaveAccount(account *entity.Account, expectedVersion int64) error {
	if err := r.saveAccountTx(r.db, account, expectedVersion); err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

func (r *ledgerRepository) AppendTransaction(transaction *entity.Transaction) error {
	return r.appendTransactionTx(r.db, transaction)
}

func (r *ledgerRepository) SaveWithTransaction(account *entity.Account, expectedVersion int64, transaction *entity.Transaction) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.saveAccountTx(tx, account, expectedVersion); err != nil {
			return err
		}
		return r.appendTransactionTx(tx, transaction)
	})
	if err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

// SaveSpend additionally writes the reserved saga marker, so a crash after
// commit always leaves either nothing or a deduction with its pending job.
func (r *ledgerRepository) SaveSpend(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, job *entity.GenerationJob) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.saveAccountTx(tx, account, expectedVersion); err != nil {
			return err
		}
		if err := r.appendTransactionTx(tx, transaction); err != nil {
			return err
		}
		jobModel := ToGenerationJobModel(job)
		if err := tx.Create(jobModel).Error; err != nil {
			return fmt.Errorf("failed to create generation job: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

// SaveRefund is the compensation counterpart of SaveSpend: the conditional
// account update, the refund entry and the reserved -> compensated transition
// of the job marker commit or roll back together. A marker that is no longer
// reserved aborts the whole commit with ErrJobNotReserved, so two
// compensators racing on the same job can never both refund.
func (r *ledgerRepository) SaveRefund(account *entity.Account, expectedVersion int64, transaction *entity.Transaction, jobID, failureReason string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.saveAccountTx(tx, account, expectedVersion); err != nil {
			return err
		}
		if err := r.appendTransactionTx(tx, transaction); err != nil {
			return err
		}
		return r.compensateJobTx(tx, jobID, failureReason)
	})
	if err != nil {
		return err
	}
	account.Version = expectedVersion + 1
	return nil
}

func (r *ledgerRepository) compensateJobTx(tx *gorm.DB, jobID, failureReason string) error {
	result := tx.Model(&model.GenerationJobModel{}).
		Where("id = ? AND status = ?", jobID, string(entity.JobStatusReserved)).
		Updates(map[string]interface{}{
			"status":         string(entity.JobStatusCompensated),
			"failure_reason": failureReason,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close generation job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", entity.ErrJobNotReserved, jobID)
	}
	return nil
}

// saveAccountTx performs the conditional update "set balance, version =
// expectedVersion + 1 where version = expectedVersion". Zero affected rows
// means another writer got there first.
func (r *ledgerRepository) saveAccountTx(tx *gorm.DB, account *entity.Account, expectedVersion int64) error {
	result := tx.Model(&model.AccountModel{}).
		Where("user_id = ? AND version = ?", account.UserID, expectedVersion).
		Updates(map[string]interface{}{
			"balance":      account.Balance(),
			"version":      expectedVersion + 1,
			"last_updated": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to save account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return entity.ErrVersionConflict
	}
	return nil
}

// appendTransactionTx inserts one immutable ledger entry. For purchases the
// payment reference is checked first and backed by a partial unique index, so
// a replayed confirmation cannot double-credit even across instances.
func (r *ledgerRepository) appendTransactionTx(tx *gorm.DB, transaction *entity.Transaction) error {
	if transaction.Type == entity.TransactionTypePurchase {
		if ref := transaction.PaymentReference(); ref != "" {
			existing, err := r.findPurchaseByReferenceTx(tx, ref)
			if err != nil {
				return err
			}
			if existing != nil {
				return entity.ErrDuplicatePayment
			}
		}
	}

	transactionModel, err := ToTransactionModel(transaction)
	if err != nil {
		return fmt.Errorf("failed to encode transaction metadata: %w", err)
	}

	if err := tx.Create(transactionModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if transaction.Type == entity.TransactionTypePurchase {
				// Lost the insert race on the payment reference index
				return entity.ErrDuplicatePayment
			}
			// Lost the insert race on the one-refund-per-job index
			return fmt.Errorf("%w: refund already recorded", entity.ErrJobNotReserved)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	transaction.ID = transactionModel.ID
	return nil
}

func (r *ledgerRepository) RecentTransactions(userID string, limit, offset int) ([]*entity.Transaction, error) {
	var transactionModels []model.TransactionModel
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&transactionModels).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	transactions := make([]*entity.Transaction, len(transactionModels))
	for i := range transactionModels {
		transactions[i] = ToTransactionEntity(&transactionModels[i])
	}
	return transactions, nil
}

func (r *ledgerRepository) FindPurchaseByReference(reference string) (*entity.Transaction, error) {
	return r.findPurchaseByReferenceTx(r.db, reference)
}

func (r *ledgerRepository) findPurchaseByReferenceTx(tx *gorm.DB, reference string) (*entity.Transaction, error) {
	var transactionModel model.TransactionModel
	err := tx.
		Where("type = ? AND metadata->>'payment_reference' = ?", string(entity.TransactionTypePurchase), reference).
		First(&transactionModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up purchase: %w", err)
	}
	return ToTransactionEntity(&transactionModel), nil
}

// FindRefundForJob reports whether a compensation for the given generation
// job was already recorded. The reconciler uses it to keep sweeps idempotent.
func (r *ledgerRepository) FindRefundForJob(jobID string) (*entity.Transaction, error) {
	var transactionModel model.TransactionModel
	err := r.db.
		Where("type = ? AND metadata->>'generation_job_id' = ?", string(entity.TransactionTypeRefund), jobID).
		First(&transactionModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refund: %w", err)
	}
	return ToTransactionEntity(&transactionModel), nil
}
