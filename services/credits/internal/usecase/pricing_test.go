package usecase

import (
	"testing"

	"pixelmint/services/credits/internal/entity"

	"github.com/stretchr/testify/assert"
)

func TestGenerationCost(t *testing.T) {
	testCases := []struct {
		name string
		req  entity.GenerationRequest
		want string
	}{
		{"single small", entity.GenerationRequest{Prompt: "x", Count: 1, Size: "256x256"}, "0.25"},
		{"single medium", entity.GenerationRequest{Prompt: "x", Count: 1, Size: "512x512"}, "0.5"},
		{"single large", entity.GenerationRequest{Prompt: "x", Count: 1, Size: "1024x1024"}, "1"},
		{"four medium", entity.GenerationRequest{Prompt: "x", Count: 4, Size: "512x512"}, "2"},
		{"three small", entity.GenerationRequest{Prompt: "x", Count: 3, Size: "256x256"}, "0.75"},
		{"ten large", entity.GenerationRequest{Prompt: "x", Count: 10, Size: "1024x1024"}, "10"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cost := GenerationCost(tc.req)
			assert.True(t, cost.Equal(dec(tc.want)), "got %s, want %s", cost, tc.want)
		})
	}
}

func TestValidateGenerationRequest(t *testing.T) {
	assert.NoError(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "x", Count: 1, Size: "512x512"}))
	assert.NoError(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "x", Count: 10, Size: "256x256"}))

	assert.Error(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "", Count: 1, Size: "512x512"}))
	assert.Error(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "x", Count: 0, Size: "512x512"}))
	assert.Error(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "x", Count: 11, Size: "512x512"}))
	assert.Error(t, ValidateGenerationRequest(entity.GenerationRequest{Prompt: "x", Count: 1, Size: "800x600"}))
}
