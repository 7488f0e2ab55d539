// Package enrich runs per-company enrichment: provider fan-out, contact
// merge, quality recompute and persistence, plus batch and candidate
// selection on top.
package enrich

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/company-intel/internal/contact"
	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/quality"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/store"
)

// Repository is the persistence the orchestrator writes through.
type Repository interface {
	store.CompanyRepository
	store.ContactRepository
	store.UpdateRepository
	store.RunRepository
}

// Reindexer refreshes a company's embedding after its text changed.
type Reindexer interface {
	Reindex(ctx context.Context, companyID string) error
}

// Config holds the orchestrator's tunables.
type Config struct {
	QualityThreshold int
	MaxConcurrent    int
}

// Orchestrator coordinates enrichment runs. Safe for concurrent use.
type Orchestrator struct {
	repo     Repository
	adapters *provider.Registry
	guard    *provider.Guard
	chain    *provider.Chain
	resolver *contact.Resolver
	scorer   *quality.Scorer
	costs    *cost.Recorder
	indexer  Reindexer
	cfg      Config

	flights singleflight.Group
	locks   *companyLocks
	runs    *runTracker
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCostRecorder prices and persists provider usage per run.
func WithCostRecorder(r *cost.Recorder) Option {
	return func(o *Orchestrator) { o.costs = r }
}

// WithReindexer refreshes embeddings of companies whose fields changed.
func WithReindexer(r Reindexer) Option {
	return func(o *Orchestrator) { o.indexer = r }
}

// New creates an Orchestrator. Adapters are called in the chain's enabled
// order; registered adapters the chain does not name run last.
func New(repo Repository, adapters *provider.Registry, guard *provider.Guard, chain *provider.Chain, scorer *quality.Scorer, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = 80
	}
	o := &Orchestrator{
		repo:     repo,
		adapters: adapters,
		guard:    guard,
		chain:    chain,
		resolver: contact.NewResolver(repo, scorer),
		scorer:   scorer,
		cfg:      cfg,
		locks:    newCompanyLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runs = newRunTracker(repo, o.now)
	return o
}

// SelectCandidates returns companies below the quality threshold or missing
// a key field, least recently updated first.
func (o *Orchestrator) SelectCandidates(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		return nil, fault.Validationf("enrich: select candidates", "limit must be > 0, got %d", limit)
	}
	cs, err := o.repo.ListEnrichmentCandidates(ctx, o.cfg.QualityThreshold, limit)
	if err != nil {
		return nil, fault.Persistence("enrich: select candidates", err)
	}
	return cs, nil
}

// EnrichOne runs enrichment for one company. Concurrent calls for the same
// id share a single run. Unknown companies and companies with neither a
// domain nor a website fail before any provider is called.
func (o *Orchestrator) EnrichOne(ctx context.Context, companyID string) (*model.EnrichmentOutcome, error) {
	// The shared run outlives any one caller's cancellation.
	runCtx := context.WithoutCancel(ctx)
	v, err, shared := o.flights.Do(companyID, func() (any, error) {
		return o.enrich(runCtx, companyID)
	})
	if shared {
		zap.L().Debug("enrich: joined in-flight run", zap.String("company_id", companyID))
	}
	out, _ := v.(*model.EnrichmentOutcome)
	if out == nil {
		return nil, err
	}
	cp := *out
	return &cp, err
}

type lookup struct {
	name string
	res  *provider.Result
	err  error
}

func (o *Orchestrator) enrich(ctx context.Context, companyID string) (*model.EnrichmentOutcome, error) {
	c, err := o.repo.GetCompany(ctx, companyID)
	if err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return nil, err
		}
		return nil, fault.Persistence("enrich: get company", err)
	}
	domain := companyDomain(*c)
	if domain == "" {
		return nil, fault.Validationf("enrich: enrich one", "company %q has neither domain nor website", companyID)
	}
	adapters := o.ordered()
	if len(adapters) == 0 {
		return nil, fault.Validation("enrich: enrich one", "no provider adapters registered")
	}

	log := zap.L().With(zap.String("company_id", companyID), zap.String("domain", domain))
	log.Info("enrich: starting run", zap.Int("providers", len(adapters)))
	o.runs.start(ctx, companyID)

	var ledger *cost.Ledger
	if o.costs != nil {
		ledger = o.costs.Ledger(companyID)
	}

	lookups := make([]lookup, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			res, err := o.guard.Lookup(ctx, a, domain, c.Name)
			if res != nil && ledger != nil {
				for _, u := range res.Usage {
					ledger.Add(u)
				}
			}
			lookups[i] = lookup{name: a.Name(), res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := &model.EnrichmentOutcome{CompanyID: companyID}
	var failures []error
	for _, l := range lookups {
		if l.err == nil {
			continue
		}
		if out.ProviderErrors == nil {
			out.ProviderErrors = make(map[string]string)
		}
		out.ProviderErrors[l.name] = l.err.Error()
		failures = append(failures, l.err)
		log.Warn("enrich: provider failed", zap.String("provider", l.name), zap.Error(l.err))
	}

	defer o.flushCosts(ctx, ledger, log)

	if len(failures) == len(lookups) {
		retryable := true
		for _, f := range failures {
			retryable = retryable && resilience.IsTransient(f)
		}
		perr := fault.Provider("enrich: all providers failed", errors.Join(failures...))
		out.Status = model.RunFailed
		out.Error = perr.Error()
		out.QualityScore = c.DataQualityScore
		o.runs.finish(ctx, companyID, model.RunFailed, perr.Error(), retryable)
		log.Warn("enrich: run failed", zap.Bool("retryable", retryable))
		return out, nil
	}

	if err := o.apply(ctx, companyID, lookups, out); err != nil {
		out.Status = model.RunFailed
		out.Error = err.Error()
		o.runs.finish(ctx, companyID, model.RunFailed, err.Error(), resilience.IsTransient(err))
		log.Error("enrich: persist failed", zap.Error(err))
		return out, err
	}

	out.Status = model.RunEnriched
	o.runs.finish(ctx, companyID, model.RunEnriched, "", false)
	log.Info("enrich: run enriched",
		zap.Int("quality_score", out.QualityScore),
		zap.Int("contacts_found", out.ContactsFound),
		zap.Int("fields_updated", out.FieldsUpdated),
	)

	if o.indexer != nil && out.FieldsUpdated > 0 {
		if err := o.indexer.Reindex(ctx, companyID); err != nil {
			log.Warn("enrich: reindex after update failed", zap.Error(err))
		}
	}
	return out, nil
}

// apply writes successful lookups in chain order under the company lock.
func (o *Orchestrator) apply(ctx context.Context, companyID string, lookups []lookup, out *model.EnrichmentOutcome) error {
	unlock := o.locks.lock(companyID)
	defer unlock()

	// Re-read so an edit made while providers ran is not overwritten wholesale.
	c, err := o.repo.GetCompany(ctx, companyID)
	if err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return err
		}
		return fault.Persistence("enrich: reload company", err)
	}

	var updates []model.CompanyUpdate
	found := make(map[string]bool)
	for _, l := range lookups {
		if l.err != nil || l.res.Empty() {
			continue
		}
		updates = append(updates, o.applyFacts(c, l.name, l.res.Facts)...)

		cands, err := o.keepStronger(ctx, companyID, l.res.Contacts)
		if err != nil {
			return err
		}
		merged, err := o.resolver.MergeAll(ctx, companyID, cands)
		if err != nil {
			return err
		}
		for _, m := range merged {
			found[m.Email] = true
		}
	}
	out.FieldsUpdated = len(updates)
	out.ContactsFound = len(found)

	return o.persist(ctx, c, updates, out)
}

// keepStronger returns cands with every candidate that would lower a stored
// contact's confidence, and comes from another source, pinned to the stored
// source, verification and confidence. Name, role and link fields still
// merge last-write-wins.
func (o *Orchestrator) keepStronger(ctx context.Context, companyID string, cands []model.ContactCandidate) ([]model.ContactCandidate, error) {
	out := make([]model.ContactCandidate, len(cands))
	copy(out, cands)
	for i, cand := range cands {
		email, err := contact.NormalizeEmail(cand.Email)
		if err != nil {
			continue // the resolver rejects it
		}
		existing, err := o.repo.GetContactByEmail(ctx, companyID, email)
		if err != nil {
			return nil, fault.Persistence("enrich: lookup contact", err)
		}
		if existing == nil || existing.Source == cand.Source {
			continue
		}
		if o.scorer.ScoreContact(cand) >= existing.ConfidenceScore {
			continue
		}
		conf := existing.ConfidenceScore
		out[i].Source = existing.Source
		out[i].VerificationStatus = existing.EmailVerificationStatus
		out[i].MatchScore = &conf
		out[i].MatchScale = 1
	}
	return out, nil
}

// applyFacts sets each non-empty fact that differs from the current value
// and returns one audit record per changed field. Keys are applied in
// sorted order.
func (o *Orchestrator) applyFacts(c *model.Company, source string, facts model.Facts) []model.CompanyUpdate {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var updates []model.CompanyUpdate
	for _, k := range keys {
		v := strings.TrimSpace(facts[k])
		old := c.Field(k)
		if v == "" || v == old {
			continue
		}
		if !c.SetField(k, v) {
			zap.L().Debug("enrich: ignoring unknown fact", zap.String("source", source), zap.String("field", k))
			continue
		}
		updates = append(updates, model.CompanyUpdate{
			CompanyID: c.ID,
			Source:    source,
			Field:     k,
			OldValue:  old,
			NewValue:  v,
			CreatedAt: o.now(),
		})
	}
	return updates
}

// persist appends the audit trail, rescoring and saving c.
func (o *Orchestrator) persist(ctx context.Context, c *model.Company, updates []model.CompanyUpdate, out *model.EnrichmentOutcome) error {
	if len(updates) > 0 {
		if err := o.repo.AppendUpdates(ctx, updates); err != nil {
			return fault.Persistence("enrich: append updates", err)
		}
	}
	contacts, err := o.repo.ListContacts(ctx, c.ID)
	if err != nil {
		return fault.Persistence("enrich: list contacts", err)
	}

	c.DataQualityScore = o.scorer.ScoreCompany(*c, contacts)
	c.Verified = false
	for _, ct := range contacts {
		if ct.Verified {
			c.Verified = true
			break
		}
	}
	c.LastUpdated = o.now()
	if err := o.repo.UpdateCompany(ctx, c); err != nil {
		return fault.Persistence("enrich: update company", err)
	}
	out.QualityScore = c.DataQualityScore
	return nil
}

// Edit applies caller-supplied facts to a company under the same lock
// enrichment writes take, recording source in the audit trail.
func (o *Orchestrator) Edit(ctx context.Context, companyID, source string, facts model.Facts) (*model.Company, error) {
	if len(facts) == 0 {
		return nil, fault.Validation("enrich: edit", "no fields given")
	}
	if source == "" {
		source = "manual"
	}
	c, updates, err := o.edit(ctx, companyID, source, facts)
	if err != nil {
		return nil, err
	}
	if o.indexer != nil && touchesText(updates) {
		if err := o.indexer.Reindex(ctx, companyID); err != nil {
			zap.L().Warn("enrich: reindex after edit failed", zap.String("company_id", companyID), zap.Error(err))
		}
	}
	return c, nil
}

func (o *Orchestrator) edit(ctx context.Context, companyID, source string, facts model.Facts) (*model.Company, []model.CompanyUpdate, error) {
	unlock := o.locks.lock(companyID)
	defer unlock()

	c, err := o.repo.GetCompany(ctx, companyID)
	if err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return nil, nil, err
		}
		return nil, nil, fault.Persistence("enrich: get company", err)
	}
	updates := o.applyFacts(c, source, facts)
	if len(updates) == 0 {
		return c, nil, nil
	}
	if err := o.persist(ctx, c, updates, &model.EnrichmentOutcome{}); err != nil {
		return nil, nil, err
	}
	return c, updates, nil
}

// touchesText reports whether any update changed a field the embedded and
// lexically indexed text is built from.
func touchesText(updates []model.CompanyUpdate) bool {
	for _, u := range updates {
		switch u.Field {
		case model.FieldName, model.FieldIndustry, model.FieldDescription:
			return true
		}
	}
	return false
}

func (o *Orchestrator) flushCosts(ctx context.Context, ledger *cost.Ledger, log *zap.Logger) {
	if ledger == nil {
		return
	}
	if err := ledger.Flush(ctx); err != nil {
		log.Warn("enrich: flush costs failed", zap.Error(err))
	}
}

// ordered returns the adapters to call: chain order first, then any
// registered adapter the chain does not mention. Disabled links are skipped.
func (o *Orchestrator) ordered() []provider.Adapter {
	var out []provider.Adapter
	seen := make(map[string]bool)
	if o.chain != nil {
		for _, l := range o.chain.Links {
			seen[l.Name] = true
		}
		for _, name := range o.chain.Enabled() {
			if a := o.adapters.Get(name); a != nil {
				out = append(out, a)
			}
		}
	}
	for _, a := range o.adapters.Adapters() {
		if !seen[a.Name()] {
			out = append(out, a)
		}
	}
	return out
}

// companyDomain prefers the stored domain and falls back to the website host.
func companyDomain(c model.Company) string {
	if d := strings.TrimSpace(c.Domain); d != "" {
		return strings.ToLower(strings.TrimPrefix(d, "www."))
	}
	site := strings.TrimSpace(c.Website)
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

var errCancelled = eris.New("cancelled")
