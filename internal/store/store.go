// Package store persists companies, contacts, embeddings, searches and the
// enrichment ledgers behind repository interfaces.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
)

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	AccountID string `json:"account_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// CompanyRepository persists companies.
type CompanyRepository interface {
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	UpdateCompany(ctx context.Context, c *model.Company) error
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	// ListEnrichmentCandidates returns companies scoring below threshold or
	// missing a key field, least recently updated first.
	ListEnrichmentCandidates(ctx context.Context, threshold, limit int) ([]model.Company, error)
}

// ContactRepository persists contacts. Email is the normalized address and
// (company_id, email) is unique.
type ContactRepository interface {
	// GetContactByEmail returns nil, nil when no contact matches.
	GetContactByEmail(ctx context.Context, companyID, email string) (*model.Contact, error)
	// UpsertContact inserts or overwrites the row for (CompanyID, Email).
	UpsertContact(ctx context.Context, c *model.Contact) error
	ListContacts(ctx context.Context, companyID string) ([]model.Contact, error)
}

// UpdateRepository is the append-only company audit log.
type UpdateRepository interface {
	AppendUpdates(ctx context.Context, updates []model.CompanyUpdate) error
	ListUpdates(ctx context.Context, companyID string) ([]model.CompanyUpdate, error)
}

// EmbeddingRepository persists one vector per company.
type EmbeddingRepository interface {
	UpsertEmbedding(ctx context.Context, rec model.EmbeddingRecord) error
	// GetEmbedding returns nil, nil when the company has no embedding.
	GetEmbedding(ctx context.Context, companyID string) (*model.EmbeddingRecord, error)
	CountEmbeddings(ctx context.Context) (int, error)
	// ListEmbeddingCandidates returns companies with no embedding or whose
	// last update is newer than their embedding.
	ListEmbeddingCandidates(ctx context.Context, limit int) ([]model.Company, error)
}

// VectorSource finds the companies closest to a query vector.
type VectorSource interface {
	// NearestEmbeddings returns up to k companies by descending cosine
	// similarity to vec. Scores are raw cosine values in [-1,1].
	NearestEmbeddings(ctx context.Context, vec []float32, k int) ([]model.ScoredID, error)
}

// LexicalSource finds companies matching a keyword query.
type LexicalSource interface {
	// SearchLexical returns up to limit companies with a positive raw
	// relevance score, highest first.
	SearchLexical(ctx context.Context, query string, limit int) ([]model.ScoredID, error)
}

// SearchRepository persists search requests and their ranked results.
type SearchRepository interface {
	CreateSearchRequest(ctx context.Context, req *model.SearchRequest) error
	// FinishSearchRequest records the final status, ICP and error of a
	// pending request. Completed requests are not modified.
	FinishSearchRequest(ctx context.Context, req *model.SearchRequest) error
	GetSearchRequest(ctx context.Context, id string) (*model.SearchRequest, error)
	SaveSearchResults(ctx context.Context, results []model.SearchResult) error
	ListSearchResults(ctx context.Context, requestID string) ([]model.SearchResult, error)
}

// CostRepository is the append-only ledger of priced calls.
type CostRepository interface {
	AppendCosts(ctx context.Context, records []model.CostRecord) error
}

// RunFilter specifies criteria for listing enrichment runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// RunRepository persists the latest enrichment run state per company.
type RunRepository interface {
	SaveRun(ctx context.Context, run model.EnrichmentRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error)
}

// Store bundles every repository with lifecycle methods.
type Store interface {
	CompanyRepository
	ContactRepository
	UpdateRepository
	EmbeddingRepository
	VectorSource
	SearchRepository
	CostRepository
	RunRepository

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func errDuplicate(entity, id string) error {
	return eris.Errorf("%s %q already exists", entity, id)
}
