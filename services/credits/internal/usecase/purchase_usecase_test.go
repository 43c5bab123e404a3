package usecase

import (
	"context"
	"errors"
	"testing"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/gateway"
	"pixelmint/services/credits/internal/repo/persistent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackages() *memPackages {
	return &memPackages{packages: map[string]*entity.CreditPackage{
		"starter": {
			ID:          "starter",
			Name:        "Starter",
			BaseCredits: dec("50"),
			PriceCents:  499,
			Currency:    "USD",
			Active:      true,
		},
		"studio": {
			ID:           "studio",
			Name:         "Studio",
			BaseCredits:  dec("200"),
			BonusCredits: dec("25"),
			PriceCents:   1499,
			Currency:     "USD",
			Active:       true,
		},
		"legacy": {
			ID:          "legacy",
			Name:        "Legacy",
			BaseCredits: dec("10"),
			PriceCents:  99,
			Currency:    "USD",
			Active:      false,
		},
	}}
}

func approvedPayments(payerID string) *stubPayments {
	return &stubPayments{verification: &gateway.PaymentVerification{
		Success:  true,
		PayerID:  payerID,
		Amount:   dec("14.99"),
		Currency: "USD",
	}}
}

func newPurchaseTestUC(ledger persistent.LedgerRepository, payments gateway.PaymentGateway, publisher *stubPublisher) PurchaseUseCase {
	return NewPurchaseUseCase(ledger, testPackages(), payments, publisher, nil, logger.New(), 3)
}

func TestConfirmPurchaseHappyPath(t *testing.T) {
	store := newMemStore("20.00")
	publisher := &stubPublisher{}
	uc := newPurchaseTestUC(store, approvedPayments("user-1"), publisher)

	result, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)

	assert.Equal(t, PurchaseCompleted, result.Status)
	assert.True(t, result.CreditsAdded.Equal(dec("225")))
	assert.True(t, result.NewBalance.Equal(dec("245")))
	assert.True(t, store.balanceOf("user-1").Equal(dec("245")))

	purchases := store.transactionsOfType("user-1", entity.TransactionTypePurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, "pay_abc123", purchases[0].Metadata[entity.MetaPaymentReference])
	assert.Equal(t, "studio", purchases[0].Metadata[entity.MetaPackageID])
	assert.Equal(t, 1, publisher.count())
}

func TestConfirmPurchaseReplayedReferenceIsIdempotent(t *testing.T) {
	store := newMemStore("20.00")
	uc := newPurchaseTestUC(store, approvedPayments("user-1"), &stubPublisher{})

	first, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)
	require.Equal(t, PurchaseCompleted, first.Status)

	second, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)

	assert.Equal(t, PurchaseDuplicate, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	// Credited exactly once
	assert.True(t, store.balanceOf("user-1").Equal(dec("245")))
	assert.Len(t, store.transactionsOfType("user-1", entity.TransactionTypePurchase), 1)
}

// blindLedger hides the recorded purchase from the first lookup, simulating
// two instances confirming the same reference concurrently: the pre-check
// misses and the unique index has to catch the insert.
type blindLedger struct {
	*memStore
	misses int
}

func (l *blindLedger) FindPurchaseByReference(reference string) (*entity.Transaction, error) {
	if l.misses > 0 {
		l.misses--
		return nil, nil
	}
	return l.memStore.FindPurchaseByReference(reference)
}

func TestConfirmPurchaseInsertRaceIsIdempotent(t *testing.T) {
	store := newMemStore("20.00")
	uc := newPurchaseTestUC(store, approvedPayments("user-1"), &stubPublisher{})

	first, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)
	require.Equal(t, PurchaseCompleted, first.Status)

	racing := newPurchaseTestUC(&blindLedger{memStore: store, misses: 1}, approvedPayments("user-1"), &stubPublisher{})
	second, err := racing.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)

	assert.Equal(t, PurchaseDuplicate, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, store.balanceOf("user-1").Equal(dec("245")))
}

func TestConfirmPurchaseVerificationRejected(t *testing.T) {
	store := newMemStore("20.00")

	// Payment belongs to someone else
	uc := newPurchaseTestUC(store, approvedPayments("user-2"), &stubPublisher{})
	result, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)
	assert.Equal(t, PurchaseVerificationFailed, result.Status)

	// Provider says the payment did not go through
	uc = newPurchaseTestUC(store, &stubPayments{verification: &gateway.PaymentVerification{Success: false}}, &stubPublisher{})
	result, err = uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)
	assert.Equal(t, PurchaseVerificationFailed, result.Status)

	// Paid less than the package price
	uc = newPurchaseTestUC(store, &stubPayments{verification: &gateway.PaymentVerification{
		Success: true, PayerID: "user-1", Amount: dec("1.00"),
	}}, &stubPublisher{})
	result, err = uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.NoError(t, err)
	assert.Equal(t, PurchaseVerificationFailed, result.Status)

	assert.True(t, store.balanceOf("user-1").Equal(dec("20")))
	assert.Empty(t, store.transactionsOfType("user-1", entity.TransactionTypePurchase))
}

func TestConfirmPurchaseProviderUnavailable(t *testing.T) {
	store := newMemStore("20.00")
	uc := newPurchaseTestUC(store, &stubPayments{err: errors.New("timeout")}, &stubPublisher{})

	_, err := uc.ConfirmPurchase(context.Background(), "user-1", "studio", "pay_abc123")
	require.Error(t, err)
	assert.True(t, store.balanceOf("user-1").Equal(dec("20")))
}

func TestConfirmPurchaseUnknownPackage(t *testing.T) {
	store := newMemStore("20.00")
	uc := newPurchaseTestUC(store, approvedPayments("user-1"), &stubPublisher{})

	_, err := uc.ConfirmPurchase(context.Background(), "user-1", "nonexistent", "pay_abc123")
	assert.ErrorIs(t, err, entity.ErrPackageNotFound)

	// Inactive packages are not purchasable either
	_, err = uc.ConfirmPurchase(context.Background(), "user-1", "legacy", "pay_abc123")
	assert.ErrorIs(t, err, entity.ErrPackageNotFound)
}

func TestConfirmPurchaseValidatesInput(t *testing.T) {
	uc := newPurchaseTestUC(newMemStore("20.00"), approvedPayments("user-1"), &stubPublisher{})

	_, err := uc.ConfirmPurchase(context.Background(), "", "studio", "pay_abc123")
	assert.True(t, entity.IsValidationError(err))

	_, err = uc.ConfirmPurchase(context.Background(), "user-1", "", "pay_abc123")
	assert.True(t, entity.IsValidationError(err))

	_, err = uc.ConfirmPurchase(context.Background(), "user-1", "studio", "")
	assert.True(t, entity.IsValidationError(err))
}

func TestListPackagesReturnsActiveOnly(t *testing.T) {
	uc := newPurchaseTestUC(newMemStore("20.00"), approvedPayments("user-1"), &stubPublisher{})

	packages, err := uc.ListPackages()
	require.NoError(t, err)
	assert.Len(t, packages, 2)
	for _, pkg := range packages {
		assert.True(t, pkg.Active)
	}
}
