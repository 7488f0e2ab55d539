// Package search ranks companies by fused keyword and vector relevance and
// records posed searches for replay.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vectors is the vector side of the corpus.
type Vectors interface {
	store.VectorSource
	CountEmbeddings(ctx context.Context) (int, error)
}

// Weights are the fusion weights. They must be non-negative and sum to 1.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights returns 0.4 lexical, 0.6 vector.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.4, Vector: 0.6}
}

// Validate rejects negative weights and weights not summing to 1.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Vector < 0 {
		return fault.Validation("search: weights", "weights must be >= 0")
	}
	if math.Abs(w.Lexical+w.Vector-1) > 1e-9 {
		return fault.Validationf("search: weights", "weights must sum to 1, got %.3f", w.Lexical+w.Vector)
	}
	return nil
}

// Ranker fuses lexical and vector candidates into one ordering.
type Ranker struct {
	lexical      store.LexicalSource
	vectors      Vectors
	embedder     QueryEmbedder
	weights      Weights
	lexicalLimit int
	vectorLimit  int
}

// NewRanker creates a Ranker. embedder may be nil, which makes every search
// lexical-only.
func NewRanker(lexical store.LexicalSource, vectors Vectors, embedder QueryEmbedder, cfg config.SearchConfig) (*Ranker, error) {
	w := Weights{Lexical: cfg.LexicalWeight, Vector: cfg.VectorWeight}
	if w.Lexical == 0 && w.Vector == 0 {
		w = DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	r := &Ranker{
		lexical:      lexical,
		vectors:      vectors,
		embedder:     embedder,
		weights:      w,
		lexicalLimit: cfg.LexicalCandidates,
		vectorLimit:  cfg.VectorCandidates,
	}
	if r.lexicalLimit <= 0 {
		r.lexicalLimit = 100
	}
	if r.vectorLimit <= 0 {
		r.vectorLimit = 100
	}
	return r, nil
}

// Search returns up to limit companies ordered by fused score, ties broken
// by name then id.
func (r *Ranker) Search(ctx context.Context, q string, limit int) ([]model.RankedResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fault.Validation("search: rank", "query is required")
	}
	if limit <= 0 {
		return nil, fault.Validationf("search: rank", "limit must be > 0, got %d", limit)
	}

	lex, err := r.lexical.SearchLexical(ctx, q, r.lexicalLimit)
	if err != nil {
		return nil, fault.Persistence("search: lexical candidates", err)
	}

	vec, err := r.vectorCandidates(ctx, q)
	if err != nil {
		return nil, err
	}

	return Fuse(lex, vec, r.weights, limit), nil
}

// vectorCandidates returns nothing when no company has an embedding or when
// the query cannot be embedded.
func (r *Ranker) vectorCandidates(ctx context.Context, q string) ([]model.ScoredID, error) {
	if r.embedder == nil || r.vectors == nil {
		return nil, nil
	}
	n, err := r.vectors.CountEmbeddings(ctx)
	if err != nil {
		return nil, fault.Persistence("search: count embeddings", err)
	}
	if n == 0 {
		return nil, nil
	}

	qv, err := r.embedder.Embed(ctx, q)
	if err != nil {
		zap.L().Warn("search: query embedding failed, ranking lexically", zap.String("query", q), zap.Error(err))
		return nil, nil
	}
	hits, err := r.vectors.NearestEmbeddings(ctx, qv, r.vectorLimit)
	if err != nil {
		return nil, fault.Persistence("search: vector candidates", err)
	}
	return hits, nil
}

// Fuse combines raw lexical and vector scores. Lexical scores are divided
// by their maximum; cosine scores are clamped to [0,1] and zero hits dropped.
// A component missing for a company counts as 0.
func Fuse(lex, vec []model.ScoredID, w Weights, limit int) []model.RankedResult {
	byID := make(map[string]*model.RankedResult, len(lex)+len(vec))
	get := func(s model.ScoredID) *model.RankedResult {
		rr, ok := byID[s.CompanyID]
		if !ok {
			rr = &model.RankedResult{CompanyID: s.CompanyID, Name: s.Name}
			byID[s.CompanyID] = rr
		}
		if rr.Name == "" {
			rr.Name = s.Name
		}
		return rr
	}

	var maxLex float64
	for _, s := range lex {
		maxLex = math.Max(maxLex, s.Score)
	}
	if maxLex > 0 {
		for _, s := range lex {
			if s.Score <= 0 {
				continue
			}
			rr := get(s)
			rr.LexicalScore = math.Max(rr.LexicalScore, s.Score/maxLex)
		}
	}

	for _, s := range vec {
		v := math.Max(0, math.Min(1, s.Score))
		if v == 0 {
			continue
		}
		rr := get(s)
		rr.VectorScore = math.Max(rr.VectorScore, v)
	}

	out := make([]model.RankedResult, 0, len(byID))
	for _, rr := range byID {
		rr.Score = w.Lexical*rr.LexicalScore + w.Vector*rr.VectorScore
		switch {
		case rr.LexicalScore > 0 && rr.VectorScore > 0:
			rr.Source = model.SourceHybrid
		case rr.VectorScore > 0:
			rr.Source = model.SourceVector
		default:
			rr.Source = model.SourceLexical
		}
		out = append(out, *rr)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CompanyID < out[j].CompanyID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
