package usecase

import (
	"pixelmint/services/credits/internal/entity"

	"github.com/shopspring/decimal"
)

const maxImagesPerRequest = 10

// Unit price per image by output size. Prices are in credits and exact;
// four 512x512 images cost 2.00, never 1.99 or 2.01.
var sizeUnitCost = map[string]decimal.Decimal{
	"256x256":   decimal.RequireFromString("0.25"),
	"512x512":   decimal.RequireFromString("0.5"),
	"1024x1024": decimal.RequireFromString("1"),
}

// ValidateGenerationRequest checks the request before any credits move.
func ValidateGenerationRequest(req entity.GenerationRequest) error {
	if req.Prompt == "" {
		return entity.NewValidationError("prompt", "must not be empty")
	}
	if req.Count < 1 || req.Count > maxImagesPerRequest {
		return entity.NewValidationError("count", "must be between 1 and 10")
	}
	if _, ok := sizeUnitCost[req.Size]; !ok {
		return entity.NewValidationError("size", "must be one of 256x256, 512x512, 1024x1024")
	}
	return nil
}

// GenerationCost computes the deterministic price of a validated request:
// unit cost for the size times the image count.
func GenerationCost(req entity.GenerationRequest) decimal.Decimal {
	return sizeUnitCost[req.Size].Mul(decimal.NewFromInt(int64(req.Count)))
}
