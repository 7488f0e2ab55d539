package model

import "time"

// SearchStatus is the lifecycle state of a SearchRequest.
type SearchStatus string

const (
	SearchPending   SearchStatus = "pending"
	SearchCompleted SearchStatus = "completed"
	SearchFailed    SearchStatus = "failed"
)

// ICP is an ideal-customer-profile filter derived from a free-text query.
type ICP struct {
	Industries   []string `json:"industries,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	MinEmployees int      `json:"min_employees,omitempty"`
	MaxEmployees int      `json:"max_employees,omitempty"`
}

// Empty reports whether no ICP constraint was derived.
func (i ICP) Empty() bool {
	return len(i.Industries) == 0 && len(i.Locations) == 0 && len(i.Keywords) == 0 &&
		i.MinEmployees == 0 && i.MaxEmployees == 0
}

// SearchRequest is a posed query. Immutable once completed.
type SearchRequest struct {
	ID          string       `json:"id"`
	AccountID   string       `json:"account_id"`
	Query       string       `json:"query"`
	ICP         ICP          `json:"icp"`
	Status      SearchStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Result source tags.
const (
	SourceLexical = "lexical"
	SourceVector  = "vector"
	SourceHybrid  = "hybrid"
)

// SearchResult links a SearchRequest to a ranked Company.
type SearchResult struct {
	SearchRequestID string  `json:"search_request_id"`
	CompanyID       string  `json:"company_id"`
	Source          string  `json:"source"`
	Score           float64 `json:"score"`
	Rank            int     `json:"rank"`
}

// RankedResult is one entry of a hybrid search ranking.
type RankedResult struct {
	CompanyID    string  `json:"company_id"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	Source       string  `json:"source"`
}

// ScoredID is a raw candidate score from a single retrieval method.
type ScoredID struct {
	CompanyID string
	Name      string
	Score     float64
}

// EmbeddingRecord is the stored vector for one company.
type EmbeddingRecord struct {
	CompanyID string    `json:"company_id"`
	Vector    []float32 `json:"-"`
	Model     string    `json:"model"`
	TextHash  string    `json:"text_hash"`
	UpdatedAt time.Time `json:"updated_at"`
}
