// Package webresearch looks companies up through a web-grounded LLM and, when
// the answer lacks a description, the company homepage.
package webresearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/pkg/jina"
	"github.com/sells-group/company-intel/pkg/perplexity"
)

// Name is the adapter identifier.
const Name = "webresearch"

const systemPrompt = `You research companies on the public web. Answer with a single JSON object and nothing else.
Use empty strings for anything you cannot confirm. List only executives named on public pages.`

var answerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "industry": {"type": "string"},
    "location": {"type": "string"},
    "website": {"type": "string"},
    "description": {"type": "string"},
    "executives": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "first_name": {"type": "string"},
          "last_name": {"type": "string"},
          "role": {"type": "string"},
          "email": {"type": "string"},
          "linkedin_url": {"type": "string"},
          "twitter_url": {"type": "string"}
        }
      }
    }
  },
  "required": ["industry", "location", "website", "description"]
}`)

type answer struct {
	Industry    string      `json:"industry"`
	Location    string      `json:"location"`
	Website     string      `json:"website"`
	Description string      `json:"description"`
	Executives  []executive `json:"executives"`
}

type executive struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	LinkedInURL string `json:"linkedin_url"`
	TwitterURL  string `json:"twitter_url"`
}

// Adapter implements provider.Adapter over Perplexity with an optional Jina
// Reader fallback for the description.
type Adapter struct {
	pplx   perplexity.Client
	reader jina.Client
	model  string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the adapter. reader may be nil.
func New(pplx perplexity.Client, reader jina.Client, model string) *Adapter {
	return &Adapter{pplx: pplx, reader: reader, model: model}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

// Lookup implements provider.Adapter.
func (a *Adapter) Lookup(ctx context.Context, domain, name string) (*provider.Result, error) {
	res := &provider.Result{}

	resp, err := a.pplx.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: a.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(domain, name)},
		},
		ResponseFormat: perplexity.JSONResponse(answerSchema),
	})
	if err != nil {
		return res, eris.Wrap(err, "webresearch: chat completion")
	}
	res.Usage = append(res.Usage, cost.Usage{
		Provider:     cost.ProviderPerplexity,
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		Requests:     1,
	})

	var ans answer
	if err := json.Unmarshal([]byte(extractJSON(resp.Content())), &ans); err != nil {
		return res, eris.Wrap(err, "webresearch: decode answer")
	}

	res.Facts = model.Facts{}
	setFact(res.Facts, model.FieldIndustry, ans.Industry)
	setFact(res.Facts, model.FieldLocation, ans.Location)
	setFact(res.Facts, model.FieldWebsite, ans.Website)
	setFact(res.Facts, model.FieldDescription, ans.Description)

	if res.Facts[model.FieldDescription] == "" && a.reader != nil {
		a.readDescription(ctx, res, homepage(ans.Website, domain))
	}

	for _, e := range ans.Executives {
		email := strings.TrimSpace(e.Email)
		if email == "" {
			continue
		}
		res.Contacts = append(res.Contacts, model.ContactCandidate{
			FirstName:          e.FirstName,
			LastName:           e.LastName,
			Role:               e.Role,
			Email:              email,
			LinkedInURL:        e.LinkedInURL,
			TwitterURL:         e.TwitterURL,
			Source:             Name,
			VerificationStatus: model.VerificationGuessed,
		})
	}

	return res, nil
}

// readDescription fills the description from the homepage. Reader failures
// only cost the description, never the lookup.
func (a *Adapter) readDescription(ctx context.Context, res *provider.Result, url string) {
	if url == "" {
		return
	}
	page, err := a.reader.Read(ctx, url)
	if err != nil {
		zap.L().Debug("webresearch: homepage read failed", zap.String("url", url), zap.Error(err))
		return
	}
	res.Usage = append(res.Usage, cost.Usage{
		Provider:    cost.ProviderJina,
		InputTokens: int64(page.Data.Usage.Tokens),
		Requests:    1,
	})
	setFact(res.Facts, model.FieldDescription, page.Data.Description)
}

func userPrompt(domain, name string) string {
	switch {
	case domain != "" && name != "":
		return fmt.Sprintf("Company: %s\nDomain: %s\nReport its industry, headquarters location, website, a one-paragraph description, and its executives.", name, domain)
	case domain != "":
		return fmt.Sprintf("Domain: %s\nReport the company's industry, headquarters location, website, a one-paragraph description, and its executives.", domain)
	default:
		return fmt.Sprintf("Company: %s\nReport its industry, headquarters location, website, a one-paragraph description, and its executives.", name)
	}
}

func setFact(f model.Facts, field, value string) {
	if v := strings.TrimSpace(value); v != "" {
		f[field] = v
	}
}

func homepage(website, domain string) string {
	if website = strings.TrimSpace(website); website != "" {
		if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
			website = "https://" + website
		}
		return website
	}
	if domain != "" {
		return "https://" + domain
	}
	return ""
}

// extractJSON trims prose or code fences around the first JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
