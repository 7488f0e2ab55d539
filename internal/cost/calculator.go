// Package cost prices external calls and records them in the cost ledger.
package cost

import (
	"github.com/sells-group/company-intel/internal/config"
)

// Provider names priced by the Calculator.
const (
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderJina       = "jina"
	ProviderHunter     = "hunter"
	ProviderEmbedding  = "embedding"
)

// Usage is what one external call consumed.
type Usage struct {
	Provider         string `json:"provider"`
	Model            string `json:"model,omitempty"`
	InputTokens      int64  `json:"input_tokens"`
	OutputTokens     int64  `json:"output_tokens"`
	CacheWriteTokens int64  `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int64  `json:"cache_read_tokens,omitempty"`
	Requests         int    `json:"requests"`
}

// Calculator computes USD costs from configured rates.
type Calculator struct {
	pricing config.PricingConfig
}

// NewCalculator creates a Calculator. Anthropic models missing from pricing
// fall back to DefaultAnthropicRates.
func NewCalculator(pricing config.PricingConfig) *Calculator {
	models := make(map[string]config.ModelPricing, len(pricing.Anthropic))
	for k, v := range DefaultAnthropicRates() {
		models[k] = v
	}
	for k, v := range pricing.Anthropic {
		models[k] = v
	}
	pricing.Anthropic = models
	return &Calculator{pricing: pricing}
}

// Price returns the USD cost of u. Unknown providers and models cost 0.
func (c *Calculator) Price(u Usage) float64 {
	switch u.Provider {
	case ProviderAnthropic:
		return c.Claude(u.Model, u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
	case ProviderPerplexity:
		return float64(u.Requests)*c.pricing.Perplexity.PerQuery +
			perMillion(u.InputTokens+u.OutputTokens, c.pricing.Perplexity.PerMTok)
	case ProviderJina:
		return perMillion(u.InputTokens+u.OutputTokens, c.pricing.Jina.PerMTok)
	case ProviderHunter:
		return float64(u.Requests) * c.pricing.Hunter.PerRequest
	case ProviderEmbedding:
		return perMillion(u.InputTokens, c.pricing.Embedding.PerMTok)
	default:
		return 0
	}
}

// Claude computes the cost of an Anthropic Messages call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.pricing.Anthropic[model]
	if !ok {
		return 0
	}
	return perMillion(input, rate.Input) +
		perMillion(output, rate.Output) +
		perMillion(cacheWrite, rate.Input*rate.CacheWriteMul) +
		perMillion(cacheRead, rate.Input*rate.CacheReadMul)
}

func perMillion(tokens int64, rate float64) float64 {
	return float64(tokens) / 1e6 * rate
}

// DefaultAnthropicRates returns list prices for the models the ICP
// deriver is configured with.
func DefaultAnthropicRates() map[string]config.ModelPricing {
	return map[string]config.ModelPricing{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}
