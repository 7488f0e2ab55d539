package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/company-intel/internal/config"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"haiku": {Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		},
		Perplexity: config.PerplexityPricing{PerQuery: 0.005, PerMTok: 1.0},
		Jina:       config.TokenPricing{PerMTok: 0.02},
		Hunter:     config.RequestPricing{PerRequest: 0.01},
		Embedding:  config.TokenPricing{PerMTok: 0.02},
	}
}

func TestPrice(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testPricing())

	tests := []struct {
		name  string
		usage Usage
		want  float64
	}{
		{"claude input and output", Usage{Provider: ProviderAnthropic, Model: "haiku", InputTokens: 1_000_000, OutputTokens: 1_000_000}, 4.80},
		{"claude cache read", Usage{Provider: ProviderAnthropic, Model: "haiku", CacheReadTokens: 1_000_000}, 0.08},
		{"claude cache write", Usage{Provider: ProviderAnthropic, Model: "haiku", CacheWriteTokens: 1_000_000}, 1.00},
		{"claude unknown model", Usage{Provider: ProviderAnthropic, Model: "nope", InputTokens: 1_000_000}, 0},
		{"claude default model", Usage{Provider: ProviderAnthropic, Model: "claude-haiku-4-5-20251001", InputTokens: 1_000_000}, 0.80},
		{"perplexity query", Usage{Provider: ProviderPerplexity, Requests: 2, InputTokens: 500_000, OutputTokens: 500_000}, 1.01},
		{"jina", Usage{Provider: ProviderJina, InputTokens: 2_000_000}, 0.04},
		{"hunter", Usage{Provider: ProviderHunter, Requests: 3}, 0.03},
		{"embedding", Usage{Provider: ProviderEmbedding, InputTokens: 1_000_000}, 0.02},
		{"unknown provider", Usage{Provider: "other", Requests: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Price(tt.usage), 1e-9)
		})
	}
}

func TestNewCalculator_OverridesDefaults(t *testing.T) {
	p := testPricing()
	p.Anthropic["claude-haiku-4-5-20251001"] = config.ModelPricing{Input: 1.0}
	calc := NewCalculator(p)
	assert.InDelta(t, 1.0, calc.Claude("claude-haiku-4-5-20251001", 1_000_000, 0, 0, 0), 1e-9)
}
