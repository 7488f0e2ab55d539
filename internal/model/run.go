package model

import "time"

// RunStatus is the state of a per-company enrichment run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunEnriched   RunStatus = "enriched"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunEnriched || s == RunFailed
}

// EnrichmentRun tracks one company's enrichment progress.
type EnrichmentRun struct {
	CompanyID    string     `json:"company_id"`
	Status       RunStatus  `json:"status"`
	FailedReason string     `json:"failed_reason,omitempty"`
	Retryable    bool       `json:"retryable"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// EnrichmentOutcome is the result of enriching one company.
type EnrichmentOutcome struct {
	CompanyID      string            `json:"company_id"`
	Status         RunStatus         `json:"status"`
	QualityScore   int               `json:"quality_score"`
	ContactsFound  int               `json:"contacts_found"`
	FieldsUpdated  int               `json:"fields_updated"`
	ProviderErrors map[string]string `json:"provider_errors,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// CostRecord is one priced external call. Append-only.
type CostRecord struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}
