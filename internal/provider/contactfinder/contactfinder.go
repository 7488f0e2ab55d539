// Package contactfinder finds executive emails for a company domain.
package contactfinder

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/pkg/hunter"
)

// Name is the adapter identifier.
const Name = "contactfinder"

// MatchScale is the maximum of Hunter's confidence score.
const MatchScale = 100

// Adapter implements provider.Adapter over the Hunter domain search.
type Adapter struct {
	client hunter.Client
	limit  int
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the adapter. limit caps emails per lookup; 0 uses the API
// default.
func New(client hunter.Client, limit int) *Adapter {
	return &Adapter{client: client, limit: limit}
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

// Lookup implements provider.Adapter. A company without a domain has no
// results.
func (a *Adapter) Lookup(ctx context.Context, domain, _ string) (*provider.Result, error) {
	res := &provider.Result{}
	if domain == "" {
		return res, nil
	}

	resp, err := a.client.DomainSearch(ctx, domain, a.limit)
	if err != nil {
		return res, eris.Wrapf(err, "contactfinder: domain search %s", domain)
	}
	res.Usage = append(res.Usage, cost.Usage{Provider: cost.ProviderHunter, Requests: 1})

	for _, e := range resp.Data.Emails {
		if e.Value == "" {
			continue
		}
		c := model.ContactCandidate{
			FirstName:          e.FirstName,
			LastName:           e.LastName,
			Role:               e.Position,
			Email:              e.Value,
			LinkedInURL:        e.LinkedIn,
			Source:             Name,
			VerificationStatus: model.ParseVerificationStatus(e.Verification.Status),
		}
		if e.Confidence > 0 {
			score := float64(e.Confidence)
			c.MatchScore = &score
			c.MatchScale = MatchScale
		}
		res.Contacts = append(res.Contacts, c)
	}
	return res, nil
}
