package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/vector"
)

// MemoryStore is an in-process Store. It backs tests and the "memory"
// driver; data is lost on exit.
type MemoryStore struct {
	mu         sync.RWMutex
	companies  map[string]model.Company
	contacts   map[string]map[string]model.Contact // company id -> email -> contact
	updates    []model.CompanyUpdate
	embeddings map[string]model.EmbeddingRecord
	requests   map[string]model.SearchRequest
	results    map[string][]model.SearchResult
	costs      []model.CostRecord
	runs       map[string]model.EnrichmentRun

	now func() time.Time
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ LexicalSource = (*MemoryStore)(nil)
)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		companies:  make(map[string]model.Company),
		contacts:   make(map[string]map[string]model.Contact),
		embeddings: make(map[string]model.EmbeddingRecord),
		requests:   make(map[string]model.SearchRequest),
		results:    make(map[string][]model.SearchResult),
		runs:       make(map[string]model.EnrichmentRun),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }
func (m *MemoryStore) Ping(_ context.Context) error    { return nil }
func (m *MemoryStore) Close() error                    { return nil }

// --- Companies ---

func (m *MemoryStore) CreateCompany(_ context.Context, c *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, ok := m.companies[c.ID]; ok {
		return fault.Persistence("store: create company", errDuplicate("company", c.ID))
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = now
	}
	m.companies[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetCompany(_ context.Context, id string) (*model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.companies[id]
	if !ok {
		return nil, fault.NotFound("store: get company", "company", id)
	}
	return &c, nil
}

func (m *MemoryStore) UpdateCompany(_ context.Context, c *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[c.ID]; !ok {
		return fault.NotFound("store: update company", "company", c.ID)
	}
	m.companies[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListCompanies(_ context.Context, filter CompanyFilter) ([]model.Company, error) {
	m.mu.RLock()
	out := make([]model.Company, 0, len(m.companies))
	for _, c := range m.companies {
		if filter.AccountID != "" && c.AccountID != filter.AccountID {
			continue
		}
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryStore) ListEnrichmentCandidates(_ context.Context, threshold, limit int) ([]model.Company, error) {
	m.mu.RLock()
	var out []model.Company
	for _, c := range m.companies {
		if c.DataQualityScore < threshold || c.MissingKeyFields() {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sortOldestFirst(out)
	return page(out, 0, limit), nil
}

// --- Contacts ---

func (m *MemoryStore) GetContactByEmail(_ context.Context, companyID, email string) (*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[companyID][email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) UpsertContact(_ context.Context, c *model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[c.CompanyID]; !ok {
		return fault.NotFound("store: upsert contact", "company", c.CompanyID)
	}
	byEmail, ok := m.contacts[c.CompanyID]
	if !ok {
		byEmail = make(map[string]model.Contact)
		m.contacts[c.CompanyID] = byEmail
	}

	now := m.now()
	if existing, ok := byEmail[c.Email]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	byEmail[c.Email] = *c
	return nil
}

func (m *MemoryStore) ListContacts(_ context.Context, companyID string) ([]model.Contact, error) {
	m.mu.RLock()
	out := make([]model.Contact, 0, len(m.contacts[companyID]))
	for _, c := range m.contacts[companyID] {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// --- Audit ---

func (m *MemoryStore) AppendUpdates(_ context.Context, updates []model.CompanyUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = m.now()
		}
		m.updates = append(m.updates, u)
	}
	return nil
}

func (m *MemoryStore) ListUpdates(_ context.Context, companyID string) ([]model.CompanyUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CompanyUpdate
	for _, u := range m.updates {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, nil
}

// --- Embeddings ---

func (m *MemoryStore) UpsertEmbedding(_ context.Context, rec model.EmbeddingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[rec.CompanyID]; !ok {
		return fault.NotFound("store: upsert embedding", "company", rec.CompanyID)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.now()
	}
	rec.Vector = append([]float32(nil), rec.Vector...)
	m.embeddings[rec.CompanyID] = rec
	return nil
}

func (m *MemoryStore) GetEmbedding(_ context.Context, companyID string) (*model.EmbeddingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.embeddings[companyID]
	if !ok {
		return nil, nil
	}
	rec.Vector = append([]float32(nil), rec.Vector...)
	return &rec, nil
}

func (m *MemoryStore) CountEmbeddings(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

func (m *MemoryStore) ListEmbeddingCandidates(_ context.Context, limit int) ([]model.Company, error) {
	m.mu.RLock()
	var out []model.Company
	for id, c := range m.companies {
		rec, ok := m.embeddings[id]
		if !ok || rec.UpdatedAt.Before(c.LastUpdated) {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sortOldestFirst(out)
	return page(out, 0, limit), nil
}

func (m *MemoryStore) NearestEmbeddings(_ context.Context, vec []float32, k int) ([]model.ScoredID, error) {
	m.mu.RLock()
	cands := make([]vector.Candidate, 0, len(m.embeddings))
	for id, rec := range m.embeddings {
		cands = append(cands, vector.Candidate{CompanyID: id, Name: m.companies[id].Name, Vector: rec.Vector})
	}
	m.mu.RUnlock()

	return vector.TopK(vec, cands, k), nil
}

// --- Lexical ---

// SearchLexical scores companies by query term occurrences, weighting name
// matches above industry and industry above description.
func (m *MemoryStore) SearchLexical(_ context.Context, query string, limit int) ([]model.ScoredID, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	var out []model.ScoredID
	for id, c := range m.companies {
		score := 3*termHits(c.Name, terms) + 2*termHits(c.Industry, terms) + termHits(c.Description, terms)
		if score > 0 {
			out = append(out, model.ScoredID{CompanyID: id, Name: c.Name, Score: float64(score)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CompanyID < out[j].CompanyID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Tokenize lowercases s and splits it into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termHits(text string, terms []string) int {
	if text == "" {
		return 0
	}
	words := Tokenize(text)
	hits := 0
	for _, t := range terms {
		for _, w := range words {
			if w == t {
				hits++
			}
		}
	}
	return hits
}

// --- Searches ---

func (m *MemoryStore) CreateSearchRequest(_ context.Context, req *model.SearchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = m.now()
	}
	if req.Status == "" {
		req.Status = model.SearchPending
	}
	m.requests[req.ID] = *req
	return nil
}

func (m *MemoryStore) FinishSearchRequest(_ context.Context, req *model.SearchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.requests[req.ID]
	if !ok {
		return fault.NotFound("store: finish search request", "search request", req.ID)
	}
	if cur.Status == model.SearchCompleted {
		return nil
	}
	cur.Status = req.Status
	cur.ICP = req.ICP
	cur.Error = req.Error
	cur.CompletedAt = req.CompletedAt
	m.requests[req.ID] = cur
	return nil
}

func (m *MemoryStore) GetSearchRequest(_ context.Context, id string) (*model.SearchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, fault.NotFound("store: get search request", "search request", id)
	}
	return &req, nil
}

func (m *MemoryStore) SaveSearchResults(_ context.Context, results []model.SearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range results {
		if _, ok := m.requests[r.SearchRequestID]; !ok {
			return fault.NotFound("store: save search results", "search request", r.SearchRequestID)
		}
		rows := m.results[r.SearchRequestID]
		replaced := false
		for i := range rows {
			if rows[i].CompanyID == r.CompanyID {
				rows[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, r)
		}
		m.results[r.SearchRequestID] = rows
	}
	return nil
}

func (m *MemoryStore) ListSearchResults(_ context.Context, requestID string) ([]model.SearchResult, error) {
	m.mu.RLock()
	out := append([]model.SearchResult(nil), m.results[requestID]...)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// --- Costs ---

func (m *MemoryStore) AppendCosts(_ context.Context, records []model.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs = append(m.costs, records...)
	return nil
}

// Costs returns a copy of the cost ledger.
func (m *MemoryStore) Costs() []model.CostRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.CostRecord(nil), m.costs...)
}

// --- Runs ---

func (m *MemoryStore) SaveRun(_ context.Context, run model.EnrichmentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.CompanyID] = run
	return nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.EnrichmentRun, error) {
	m.mu.RLock()
	var out []model.EnrichmentRun
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return page(out, 0, filter.Limit), nil
}

// --- helpers ---

func sortOldestFirst(cs []model.Company) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].LastUpdated.Equal(cs[j].LastUpdated) {
			return cs[i].LastUpdated.Before(cs[j].LastUpdated)
		}
		return cs[i].ID < cs[j].ID
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
