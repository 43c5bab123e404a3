package main

import (
	"fmt"
	"time"

	"pixelmint/pkg/config"
	"pixelmint/pkg/database"
	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New()
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		panic(err)
	}

	if err := seedPackages(db, log); err != nil {
		log.Error("Failed to seed database: %v", err)
		panic(err)
	}

	log.Info("Database seeded successfully!")
}

func seedPackages(db *gorm.DB, log *logger.Logger) error {
	packages := []model.CreditPackageModel{
		{
			ID:          "starter",
			Name:        "Starter",
			BaseCredits: decimal.RequireFromString("50"),
			PriceCents:  499,
			Currency:    "USD",
			Active:      true,
		},
		{
			ID:           "creator",
			Name:         "Creator",
			BaseCredits:  decimal.RequireFromString("120"),
			BonusCredits: decimal.RequireFromString("10"),
			PriceCents:   999,
			Currency:     "USD",
			Active:       true,
		},
		{
			ID:           "studio",
			Name:         "Studio",
			BaseCredits:  decimal.RequireFromString("200"),
			BonusCredits: decimal.RequireFromString("25"),
			PriceCents:   1499,
			Currency:     "USD",
			Active:       true,
		},
		{
			ID:           "agency",
			Name:         "Agency",
			BaseCredits:  decimal.RequireFromString("500"),
			BonusCredits: decimal.RequireFromString("100"),
			PriceCents:   2999,
			Currency:     "USD",
			Active:       true,
		},
	}

	for i := range packages {
		pkg := &packages[i]
		pkg.CreatedAt = time.Now()

		var existing model.CreditPackageModel
		result := db.Where("id = ?", pkg.ID).First(&existing)
		if result.Error == nil {
			log.Info("Package %s already exists, skipping", pkg.ID)
			continue
		}

		if err := db.Create(pkg).Error; err != nil {
			log.Error("Failed to create package %s: %v", pkg.ID, err)
			continue
		}
		log.Info("Created package: %s (%s credits for $%.2f)", pkg.Name,
			pkg.BaseCredits.Add(pkg.BonusCredits).StringFixed(2), float64(pkg.PriceCents)/100)
	}

	return nil
}
