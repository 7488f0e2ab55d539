package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/pkg/anthropic"
)

// ICPDeriver turns a free-text query into an ideal-customer-profile filter.
type ICPDeriver interface {
	Derive(ctx context.Context, query string) (model.ICP, error)
}

// CostRecorder records priced calls.
type CostRecorder interface {
	Record(ctx context.Context, companyID string, u cost.Usage) (float64, error)
}

const icpSystemPrompt = `You convert a B2B prospecting query into an ideal customer profile.
Reply with one JSON object and nothing else, using exactly these keys:
{"industries": [string], "locations": [string], "keywords": [string], "min_employees": int, "max_employees": int}
Use empty arrays and 0 for anything the query does not state. Do not invent constraints.`

// AnthropicDeriver derives ICPs with the Anthropic Messages API. The
// instructions sit in a cached system block shared by every query.
type AnthropicDeriver struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costs     CostRecorder
}

var _ ICPDeriver = (*AnthropicDeriver)(nil)

// NewAnthropicDeriver creates a deriver. costs may be nil.
func NewAnthropicDeriver(client anthropic.Client, model string, maxTokens int64, costs CostRecorder) *AnthropicDeriver {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicDeriver{client: client, model: model, maxTokens: maxTokens, costs: costs}
}

// Derive implements ICPDeriver.
func (d *AnthropicDeriver) Derive(ctx context.Context, q string) (model.ICP, error) {
	temp := 0.0
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(icpSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: q}},
		Temperature: &temp,
	})
	if err != nil {
		return model.ICP{}, eris.Wrap(err, "search: derive icp")
	}

	if d.costs != nil {
		u := cost.Usage{
			Provider:         cost.ProviderAnthropic,
			Model:            d.model,
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
			Requests:         1,
		}
		if _, err := d.costs.Record(ctx, "", u); err != nil {
			zap.L().Warn("search: record icp cost failed", zap.Error(err))
		}
	}

	return parseICP(resp.Text())
}

func parseICP(text string) (model.ICP, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return model.ICP{}, eris.New("search: icp answer has no json object")
	}
	var icp model.ICP
	if err := json.Unmarshal([]byte(text[start:end+1]), &icp); err != nil {
		return model.ICP{}, eris.Wrap(err, "search: decode icp")
	}
	icp.Industries = cleanList(icp.Industries)
	icp.Locations = cleanList(icp.Locations)
	icp.Keywords = cleanList(icp.Keywords)
	if icp.MinEmployees < 0 {
		icp.MinEmployees = 0
	}
	if icp.MaxEmployees < icp.MinEmployees {
		icp.MaxEmployees = 0
	}
	return icp, nil
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
