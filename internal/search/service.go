package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// Searcher ranks companies for a query.
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]model.RankedResult, error)
}

// Service runs searches and persists them as replayable requests.
type Service struct {
	repo   store.SearchRepository
	ranker Searcher
	icp    ICPDeriver
	now    func() time.Time
}

// NewService creates a Service. icp may be nil, leaving every ICP empty.
func NewService(repo store.SearchRepository, ranker Searcher, icp ICPDeriver) *Service {
	return &Service{repo: repo, ranker: ranker, icp: icp, now: time.Now}
}

// Run records a search request, ranks the corpus and stores the ranked
// results. A ranking or persistence failure marks the request failed.
func (s *Service) Run(ctx context.Context, accountID, q string, limit int) (*model.SearchRequest, []model.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil, fault.Validation("search: run", "query is required")
	}
	if limit <= 0 {
		return nil, nil, fault.Validationf("search: run", "limit must be > 0, got %d", limit)
	}

	req := &model.SearchRequest{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Query:     q,
		Status:    model.SearchPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateSearchRequest(ctx, req); err != nil {
		return nil, nil, fault.Persistence("search: create request", err)
	}
	log := zap.L().With(zap.String("search_id", req.ID))

	if s.icp != nil {
		icp, err := s.icp.Derive(ctx, q)
		if err != nil {
			log.Warn("search: icp derivation failed", zap.Error(err))
		} else {
			req.ICP = icp
		}
	}

	ranked, err := s.ranker.Search(ctx, q, limit)
	if err != nil {
		return req, nil, s.fail(ctx, req, err)
	}

	results := make([]model.SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = model.SearchResult{
			SearchRequestID: req.ID,
			CompanyID:       r.CompanyID,
			Source:          r.Source,
			Score:           r.Score,
			Rank:            i + 1,
		}
	}
	if err := s.repo.SaveSearchResults(ctx, results); err != nil {
		return req, nil, s.fail(ctx, req, fault.Persistence("search: save results", err))
	}

	done := s.now().UTC()
	req.Status = model.SearchCompleted
	req.CompletedAt = &done
	if err := s.repo.FinishSearchRequest(ctx, req); err != nil {
		return req, results, fault.Persistence("search: complete request", err)
	}

	log.Info("search: completed", zap.String("query", q), zap.Int("results", len(results)))
	return req, results, nil
}

// fail marks req failed and returns cause.
func (s *Service) fail(ctx context.Context, req *model.SearchRequest, cause error) error {
	done := s.now().UTC()
	req.Status = model.SearchFailed
	req.Error = cause.Error()
	req.CompletedAt = &done
	if err := s.repo.FinishSearchRequest(ctx, req); err != nil {
		zap.L().Error("search: mark request failed", zap.String("search_id", req.ID), zap.Error(err))
	}
	return cause
}

// Replay returns a stored request and its results in rank order.
func (s *Service) Replay(ctx context.Context, id string) (*model.SearchRequest, []model.SearchResult, error) {
	req, err := s.repo.GetSearchRequest(ctx, id)
	if err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return nil, nil, err
		}
		return nil, nil, fault.Persistence("search: get request", err)
	}
	results, err := s.repo.ListSearchResults(ctx, id)
	if err != nil {
		return nil, nil, fault.Persistence("search: list results", err)
	}
	return req, results, nil
}
