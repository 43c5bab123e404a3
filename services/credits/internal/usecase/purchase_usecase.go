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

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseCompleted          PurchaseStatus = "completed"
	PurchaseDuplicate          PurchaseStatus = "duplicate"
	PurchaseVerificationFailed PurchaseStatus = "verification_failed"
)

type PurchaseResult struct {
	Status        PurchaseStatus
	TransactionID string
	CreditsAdded  decimal.Decimal
	NewBalance    decimal.Decimal
}

type PurchaseUseCase interface {
	ConfirmPurchase(ctx context.Context, userID, packageID, paymentReference string) (*PurchaseResult, error)
	ListPackages() ([]*entity.CreditPackage, error)
}

type purchaseUseCase struct {
	ledgerRepo  persistent.LedgerRepository
	packageRepo persistent.CreditPackageRepository
	payments    gateway.PaymentGateway
	publisher   EventPublisher
	redisClient *redis.Client
	logger      *logger.Logger
	maxRetries  int
}

func NewPurchaseUseCase(
	ledgerRepo persistent.LedgerRepository,
	packageRepo persistent.CreditPackageRepository,
	payments gateway.PaymentGateway,
	publisher EventPublisher,
	redisClient *redis.Client,
	log *logger.Logger,
	maxRetries int,
) PurchaseUseCase {
	return &purchaseUseCase{
		ledgerRepo:  ledgerRepo,
		packageRepo: packageRepo,
		payments:    payments,
		publisher:   publisher,
		redisClient: redisClient,
		logger:      log,
		maxRetries:  maxRetries,
	}
}

// ConfirmPurchase credits a package after verifying its payment reference.
// Replays are absorbed twice: a lookup before verification for the common
// case, and the unique index on the reference for the insert race. Either way
// the caller gets a duplicate result, not an error, so front-end retries stay
// harmless.
func (uc *purchaseUseCase) ConfirmPurchase(ctx context.Context, userID, packageID, paymentReference string) (*PurchaseResult, error) {
	if userID == "" {
		return nil, entity.NewValidationError("user_id", "must not be empty")
	}
	if packageID == "" {
		return nil, entity.NewValidationError("package_id", "must not be empty")
	}
	if paymentReference == "" {
		return nil, entity.NewValidationError("payment_reference", "must not be empty")
	}

	existing, err := uc.ledgerRepo.FindPurchaseByReference(paymentReference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		uc.logger.Info("Duplicate purchase confirmation for reference %s", paymentReference)
		return &PurchaseResult{
			Status:        PurchaseDuplicate,
			TransactionID: existing.ID,
			CreditsAdded:  existing.Amount,
			NewBalance:    existing.BalanceAfter,
		}, nil
	}

	creditPackage, err := uc.packageRepo.GetByID(packageID)
	if err != nil {
		return nil, err
	}

	verification, err := uc.payments.VerifyPayment(ctx, paymentReference, creditPackage.Price())
	if err != nil {
		return nil, fmt.Errorf("payment verification unavailable: %w", err)
	}
	if !verification.Success || verification.PayerID != userID || verification.Amount.LessThan(creditPackage.Price()) {
		uc.logger.Warn("Payment verification rejected for reference %s (user %s)", paymentReference, userID)
		return &PurchaseResult{Status: PurchaseVerificationFailed}, nil
	}

	total := creditPackage.TotalCredits()
	reason := fmt.Sprintf("purchase: %s package", creditPackage.Name)

	account, result, err := applyWithRetry(uc.ledgerRepo, userID, uc.maxRetries,
		func(account *entity.Account) (*entity.TransactionResult, error) {
			return account.AddCredits(total, reason)
		},
		func(account *entity.Account, expectedVersion int64, result *entity.TransactionResult) error {
			purchase := &entity.Transaction{
				ID:           result.TransactionID,
				UserID:       userID,
				Type:         entity.TransactionTypePurchase,
				Amount:       total,
				Description:  reason,
				BalanceAfter: result.NewBalance,
				Metadata: map[string]string{
					entity.MetaPaymentReference: paymentReference,
					entity.MetaPackageID:        creditPackage.ID,
				},
				CreatedAt: time.Now(),
			}
			return uc.ledgerRepo.SaveWithTransaction(account, expectedVersion, purchase)
		})
	if err != nil {
		if errors.Is(err, entity.ErrDuplicatePayment) {
			// Another instance committed the same reference first. The whole
			// commit rolled back, so nothing was double-credited.
			recorded, lookupErr := uc.ledgerRepo.FindPurchaseByReference(paymentReference)
			if lookupErr != nil || recorded == nil {
				return &PurchaseResult{Status: PurchaseDuplicate}, nil
			}
			return &PurchaseResult{
				Status:        PurchaseDuplicate,
				TransactionID: recorded.ID,
				CreditsAdded:  recorded.Amount,
				NewBalance:    recorded.BalanceAfter,
			}, nil
		}
		return nil, err
	}

	forwardEvents(account, uc.publisher, uc.logger)
	invalidateBalanceCache(ctx, uc.redisClient, userID, uc.logger)

	uc.logger.Info("Credited %s credits to user %s for package %s", total.StringFixed(2), userID, creditPackage.ID)
	return &PurchaseResult{
		Status:        PurchaseCompleted,
		TransactionID: result.TransactionID,
		CreditsAdded:  total,
		NewBalance:    result.NewBalance,
	}, nil
}

func (uc *purchaseUseCase) ListPackages() ([]*entity.CreditPackage, error) {
	return uc.packageRepo.ListActive()
}
