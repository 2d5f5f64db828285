package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestUsageEstimator_Estimate(t *testing.T) {
	estimator := domain.NewUsageEstimator(12)

	tests := []struct {
		name     string
		input    domain.UsageInput
		expected domain.Usage
	}{
		{
			name:  "estimates query and response independently",
			input: domain.UsageInput{QueryChars: 40, ResponseChars: 100},
			expected: domain.Usage{
				PromptTokens:     10,
				CompletionTokens: 25,
				TotalTokens:      35,
				Cost:             35.0 / 1_000_000 * 12,
				Estimated:        true,
			},
		},
		{
			name:  "short texts count at least one token each",
			input: domain.UsageInput{QueryChars: 2, ResponseChars: 0},
			expected: domain.Usage{
				PromptTokens:     1,
				CompletionTokens: 1,
				TotalTokens:      2,
				Cost:             2.0 / 1_000_000 * 12,
				Estimated:        true,
			},
		},
		{
			name:  "lifecycle payload is ignored by default",
			input: domain.UsageInput{QueryChars: 8, ResponseChars: 8, LifecycleChars: 4000},
			expected: domain.Usage{
				PromptTokens:     2,
				CompletionTokens: 2,
				TotalTokens:      4,
				Cost:             4.0 / 1_000_000 * 12,
				Estimated:        true,
			},
		},
		{
			name: "declared total is authoritative",
			input: domain.UsageInput{
				QueryChars:    2,
				ResponseChars: 6,
				Declared:      &domain.Usage{TotalTokens: 7},
			},
			expected: domain.Usage{
				PromptTokens:     1,
				CompletionTokens: 6,
				TotalTokens:      7,
				ProviderTokens:   7,
				Cost:             7.0 / 1_000_000 * 12,
			},
		},
		{
			name: "declared split is kept",
			input: domain.UsageInput{
				QueryChars: 400,
				Declared:   &domain.Usage{PromptTokens: 30, CompletionTokens: 12},
			},
			expected: domain.Usage{
				PromptTokens:     30,
				CompletionTokens: 12,
				TotalTokens:      42,
				ProviderTokens:   42,
				Cost:             42.0 / 1_000_000 * 12,
			},
		},
		{
			name: "negative declared total never yields a negative total",
			input: domain.UsageInput{
				QueryChars: 8,
				Declared:   &domain.Usage{PromptTokens: 3, TotalTokens: -10},
			},
			expected: domain.Usage{
				PromptTokens:   3,
				TotalTokens:    3,
				ProviderTokens: 3,
				Cost:           3.0 / 1_000_000 * 12,
			},
		},
		{
			name: "zero declared usage falls back to estimation",
			input: domain.UsageInput{
				QueryChars:    4,
				ResponseChars: 4,
				Declared:      &domain.Usage{},
			},
			expected: domain.Usage{
				PromptTokens:     1,
				CompletionTokens: 1,
				TotalTokens:      2,
				Cost:             2.0 / 1_000_000 * 12,
				Estimated:        true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := estimator.Estimate(tt.input)

			require.InDelta(t, tt.expected.Cost, usage.Cost, 1e-12)
			usage.Cost = tt.expected.Cost
			require.Equal(t, tt.expected, usage)
		})
	}
}

func TestUsageEstimator_Options(t *testing.T) {
	t.Run("should fold lifecycle payload into the completion estimate", func(t *testing.T) {
		estimator := domain.NewUsageEstimator(12, domain.WithLifecycleFolding(true))

		usage := estimator.Estimate(domain.UsageInput{QueryChars: 8, ResponseChars: 8, LifecycleChars: 400})

		require.Equal(t, 2, usage.PromptTokens)
		require.Equal(t, 102, usage.CompletionTokens)
		require.Equal(t, 104, usage.TotalTokens)
	})

	t.Run("should honour a custom divisor", func(t *testing.T) {
		estimator := domain.NewUsageEstimator(12, domain.WithCharsPerToken(2))

		usage := estimator.Estimate(domain.UsageInput{QueryChars: 8, ResponseChars: 8})

		require.Equal(t, 8, usage.TotalTokens)
	})

	t.Run("should compute cost per million tokens", func(t *testing.T) {
		estimator := domain.NewUsageEstimator(12)

		require.InDelta(t, 12.0, estimator.Cost(1_000_000), 1e-9)
		require.Zero(t, estimator.Cost(0))
	})
}
