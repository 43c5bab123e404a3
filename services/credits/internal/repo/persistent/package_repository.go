package persistent

import (
	"errors"
	"fmt"

	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/model"

	"gorm.io/gorm"
)

type CreditPackageRepository interface {
	GetByID(id string) (*entity.CreditPackage, error)
	ListActive() ([]*entity.CreditPackage, error)
}

type creditPackageRepository struct {
	db *gorm.DB
}

func NewCreditPackageRepository(db *gorm.DB) CreditPackageRepository {
	return &creditPackageRepository{db: db}
}

func (r *creditPackageRepository) GetByID(id string) (*entity.CreditPackage, error) {
	var packageModel model.CreditPackageModel
	err := r.db.Where("id = ? AND active = ?", id, true).First(&packageModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credit package: %w", err)
	}
	return ToCreditPackageEntity(&packageModel), nil
}

func (r *creditPackageRepository) ListActive() ([]*entity.CreditPackage, error) {
	var packageModels []model.CreditPackageModel
	if err := r.db.Where("active = ?", true).Order("price_cents ASC").Find(&packageModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list credit packages: %w", err)
	}

	packages := make([]*entity.CreditPackage, len(packageModels))
	for i := range packageModels {
		packages[i] = ToCreditPackageEntity(&packageModels[i])
	}
	return packages, nil
}
