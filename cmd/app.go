package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/embed"
	"github.com/sells-group/company-intel/internal/enrich"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/provider/contactfinder"
	"github.com/sells-group/company-intel/internal/provider/webresearch"
	"github.com/sells-group/company-intel/internal/quality"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/search"
	"github.com/sells-group/company-intel/internal/store"
	"github.com/sells-group/company-intel/pkg/anthropic"
	"github.com/sells-group/company-intel/pkg/hunter"
	"github.com/sells-group/company-intel/pkg/jina"
	"github.com/sells-group/company-intel/pkg/perplexity"
)

// appEnv holds the store and every service the commands and HTTP handlers
// drive. Callers should defer env.Close().
type appEnv struct {
	Store        store.Store
	Index        *search.Index // nil unless the driver needs a separate lexical index
	Orchestrator *enrich.Orchestrator
	Indexer      *embed.Indexer
	Search       *search.Service
	Costs        *cost.Recorder
	Scorer       *quality.Scorer
	Guard        *provider.Guard

	closers []func() error
}

// Close releases the index, embedding cache and store.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// appDeps are the external collaborators buildApp wires together.
type appDeps struct {
	Adapters []provider.Adapter
	Embedder embed.Embedder
	ICP      search.ICPDeriver // may be nil
}

// initApp opens the store, builds the real provider clients and wires the
// services for the given config mode.
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, idx, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func() error{st.Close}
	if idx != nil {
		closers = append(closers, idx.Close)
	}
	fail := func(err error) (*appEnv, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	var embedder embed.Embedder
	oe, err := embed.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		return fail(err)
	}
	embedder = oe
	if cfg.Embedding.CachePath != "" {
		cached, err := embed.NewCachedEmbedder(oe, cfg.Embedding.CachePath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, cached.Close)
		embedder = cached
	}

	deps := appDeps{Adapters: buildAdapters(cfg), Embedder: embedder}
	costs := cost.NewRecorder(cost.NewCalculator(cfg.Pricing), st)
	if cfg.Anthropic.Key != "" {
		deps.ICP = search.NewAnthropicDeriver(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, costs)
	} else {
		zap.L().Debug("INTEL_ANTHROPIC_KEY not set, search requests get no ICP")
	}

	chain, err := provider.LoadChain(cfg.Providers.ChainFile, cfg.Providers)
	if err != nil {
		return fail(err)
	}

	env, err := buildApp(cfg, st, idx, chain, costs, deps)
	if err != nil {
		return fail(err)
	}
	env.closers = closers
	return env, nil
}

// buildAdapters creates an adapter for every provider with a key.
func buildAdapters(c *config.Config) []provider.Adapter {
	var adapters []provider.Adapter
	if c.Perplexity.Key != "" {
		pplx := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		reader := jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL))
		adapters = append(adapters, webresearch.New(pplx, reader, c.Perplexity.Model))
	} else {
		zap.L().Info("INTEL_PERPLEXITY_KEY not set, web research adapter disabled")
	}
	if c.Hunter.Key != "" {
		client := hunter.NewClient(c.Hunter.Key, hunter.WithBaseURL(c.Hunter.BaseURL))
		adapters = append(adapters, contactfinder.New(client, c.Hunter.Limit))
	} else {
		zap.L().Info("INTEL_HUNTER_KEY not set, contact finder adapter disabled")
	}
	return adapters
}

// buildApp wires the services over an open store. idx may be nil when the
// store answers lexical queries itself.
func buildApp(c *config.Config, st store.Store, idx *search.Index, chain *provider.Chain, costs *cost.Recorder, deps appDeps) (*appEnv, error) {
	reg := provider.NewRegistry()
	for _, a := range deps.Adapters {
		reg.Register(a)
	}
	guard := provider.NewGuard(chain, resilience.NewBreakerConfig(c.Providers.BreakerThreshold, c.Providers.BreakerResetSecs))

	scorer, err := quality.NewScorer(c.Quality.Weights)
	if err != nil {
		return nil, err
	}

	ixOpts := []embed.Option{embed.WithCostRecorder(costs)}
	if idx != nil {
		ixOpts = append(ixOpts, embed.WithTextIndexer(idx))
	}
	indexer := embed.NewIndexer(st, deps.Embedder, c.Embedding.Workers, ixOpts...)

	orc := enrich.New(st, reg, guard, chain, scorer, enrich.Config{
		QualityThreshold: c.Enrich.QualityThreshold,
		MaxConcurrent:    c.Batch.MaxConcurrentCompanies,
	}, enrich.WithCostRecorder(costs), enrich.WithReindexer(indexer))

	var lexical store.LexicalSource
	switch {
	case idx != nil:
		lexical = idx
	default:
		ls, ok := st.(store.LexicalSource)
		if !ok {
			return nil, eris.Errorf("store %T has no lexical search and no index was opened", st)
		}
		lexical = ls
	}
	ranker, err := search.NewRanker(lexical, st, deps.Embedder, c.Search)
	if err != nil {
		return nil, err
	}

	return &appEnv{
		Store:        st,
		Index:        idx,
		Orchestrator: orc,
		Indexer:      indexer,
		Search:       search.NewService(st, ranker, deps.ICP),
		Costs:        costs,
		Scorer:       scorer,
		Guard:        guard,
	}, nil
}
