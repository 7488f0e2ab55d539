// Package contact merges provider contact candidates into the single stored
// contact per (company, email).
package contact

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// Scorer assigns a confidence to a candidate.
type Scorer interface {
	ScoreContact(c model.ContactCandidate) float64
}

// Resolver upserts candidates with last-write-wins per field.
type Resolver struct {
	repo   store.ContactRepository
	scorer Scorer
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(repo store.ContactRepository, scorer Scorer) *Resolver {
	return &Resolver{repo: repo, scorer: scorer, now: time.Now}
}

// NormalizeEmail trims and lowercases an address and rejects anything that
// is not a bare addr-spec.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", fault.Validation("contact: normalize email", "email is required")
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e || addr.Name != "" {
		return "", fault.Validationf("contact: normalize email", "malformed email %q", email)
	}
	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 {
		return "", fault.Validationf("contact: normalize email", "malformed email %q", email)
	}
	return e, nil
}

// Merge folds one candidate into the stored contact for (companyID, email).
// Non-empty candidate fields overwrite stored ones; source, confidence and
// verification always follow the candidate.
func (r *Resolver) Merge(ctx context.Context, companyID string, cand model.ContactCandidate) (*model.Contact, error) {
	if companyID == "" {
		return nil, fault.Validation("contact: merge", "company id is required")
	}
	email, err := NormalizeEmail(cand.Email)
	if err != nil {
		return nil, err
	}

	existing, err := r.repo.GetContactByEmail(ctx, companyID, email)
	if err != nil {
		return nil, fault.Persistence("contact: lookup", err)
	}

	now := r.now().UTC()
	c := &model.Contact{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Email:     email,
		CreatedAt: now,
	}
	if existing != nil {
		*c = *existing
	}

	overwrite(&c.FirstName, cleanName(cand.FirstName))
	overwrite(&c.LastName, cleanName(cand.LastName))
	overwrite(&c.Role, strings.TrimSpace(cand.Role))
	overwrite(&c.LinkedInURL, strings.TrimSpace(cand.LinkedInURL))
	overwrite(&c.TwitterURL, strings.TrimSpace(cand.TwitterURL))

	status := cand.VerificationStatus
	if status == "" {
		status = model.VerificationUnknown
	}
	cand.VerificationStatus = status
	c.Source = cand.Source
	c.EmailVerificationStatus = status
	c.Verified = status == model.VerificationValid
	c.ConfidenceScore = r.scorer.ScoreContact(cand)
	c.UpdatedAt = now

	if err := r.repo.UpsertContact(ctx, c); err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return nil, err
		}
		return nil, fault.Persistence("contact: upsert", err)
	}
	return c, nil
}

// MergeAll merges candidates in order and returns the merged contacts.
// Invalid candidates are logged and skipped; the first other failure stops
// the merge.
func (r *Resolver) MergeAll(ctx context.Context, companyID string, cands []model.ContactCandidate) ([]model.Contact, error) {
	var merged []model.Contact
	for _, cand := range cands {
		c, err := r.Merge(ctx, companyID, cand)
		if err != nil {
			if fault.Is(err, fault.KindValidation) {
				zap.L().Warn("contact: skipping candidate",
					zap.String("company_id", companyID),
					zap.String("source", cand.Source),
					zap.Error(err),
				)
				continue
			}
			return merged, err
		}
		merged = append(merged, *c)
	}
	return merged, nil
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// cleanName title-cases names a provider returned in a single case and
// leaves mixed-case names ("McDonald", "de la Cruz") alone.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return cases.Title(language.English).String(s)
	}
	return s
}
