package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/provider"
	"github.com/sells-group/company-intel/internal/quality"
	"github.com/sells-group/company-intel/internal/store"
)

// keywordEmbedder maps fintech text onto one axis and everything else onto
// the other.
type keywordEmbedder struct{}

func (keywordEmbedder) Model() string { return "keyword-test" }

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "fintech") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type staticAdapter struct {
	name string
	res  *provider.Result
	err  error
}

func (s staticAdapter) Name() string { return s.name }

func (s staticAdapter) Lookup(context.Context, string, string) (*provider.Result, error) {
	return s.res, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Quality:   config.QualityConfig{Weights: quality.DefaultWeights()},
		Search:    config.SearchConfig{LexicalWeight: 0.4, VectorWeight: 0.6, LexicalCandidates: 100, VectorCandidates: 100},
		Embedding: config.EmbeddingConfig{Workers: 2},
		Batch:     config.BatchConfig{MaxConcurrentCompanies: 2},
		Enrich:    config.EnrichConfig{QualityThreshold: 80},
		Providers: config.ProvidersConfig{BreakerThreshold: 5, BreakerResetSecs: 30},
	}
}

func newTestServer(t *testing.T, adapters ...provider.Adapter) (http.Handler, *store.MemoryStore) {
	t.Helper()
	c := testConfig()
	st := store.NewMemory()
	var order []string
	for _, a := range adapters {
		order = append(order, a.Name())
	}
	chain := provider.DefaultChain(config.ProvidersConfig{Order: order, TimeoutSecs: 2})
	costs := cost.NewRecorder(cost.NewCalculator(c.Pricing), st)

	env, err := buildApp(c, st, nil, chain, costs, appDeps{Adapters: adapters, Embedder: keywordEmbedder{}})
	require.NoError(t, err)
	return newRouter(env, []string{"*"}), st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestAPI_Health(t *testing.T) {
	h, _ := newTestServer(t)
	rr := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	body := decodeBody[healthResponse](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Providers)
}

func TestAPI_HealthReportsOpenBreaker(t *testing.T) {
	flaky := staticAdapter{name: "flaky", err: errors.New("unexpected status 500")}
	h, _ := newTestServer(t, flaky)

	rr := do(t, h, http.MethodPost, "/companies", map[string]string{"id": "c1", "name": "Ledgerly", "domain": "ledgerly.io"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/enrich/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody[healthResponse](t, do(t, h, http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"flaky": "closed"}, body.Providers)

	// testConfig trips the breaker after five consecutive failures.
	for i := 0; i < 4; i++ {
		do(t, h, http.MethodPost, "/enrich/c1", nil)
	}
	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody[healthResponse](t, rr)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "open", body.Providers["flaky"])
}

func TestAPI_CompanyLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/companies", map[string]string{"id": "c1", "name": " Ledgerly ", "domain": "ledgerly.io"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[model.Company](t, rr)
	assert.Equal(t, "Ledgerly", created.Name)
	assert.Equal(t, 15, created.DataQualityScore) // name only

	rr = do(t, h, http.MethodPost, "/companies", map[string]any{
		"id": "c2", "name": "Greenfield", "website": "https://greenfield.farm",
		"description": "Farm software", "data_quality_score": 99, "verified": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	scored := decodeBody[model.Company](t, rr)
	assert.Equal(t, 15+15+20, scored.DataQualityScore)
	assert.False(t, scored.Verified)

	rr = do(t, h, http.MethodPost, "/companies", map[string]string{"id": "c1", "name": "Again"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/companies", map[string]string{"domain": "x.io"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation", decodeBody[map[string]string](t, rr)["kind"])

	rr = do(t, h, http.MethodPost, "/companies", map[string]string{"nmae": "typo"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/companies/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[companyResponse](t, rr)
	assert.Equal(t, "ledgerly.io", got.Company.Domain)
	assert.NotNil(t, got.Contacts)
	assert.Empty(t, got.Contacts)

	rr = do(t, h, http.MethodGet, "/companies/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeBody[map[string]string](t, rr)["kind"])

	rr = do(t, h, http.MethodPatch, "/companies/c1", map[string]any{"fields": map[string]string{"industry": "Fintech"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	edited := decodeBody[model.Company](t, rr)
	assert.Equal(t, "Fintech", edited.Industry)
	assert.Equal(t, 30, edited.DataQualityScore)
}

func TestAPI_EnrichAndRuns(t *testing.T) {
	adapter := staticAdapter{name: "contactfinder", res: &provider.Result{
		Facts: model.Facts{model.FieldIndustry: "Fintech"},
		Contacts: []model.ContactCandidate{{
			FirstName: "Jane", Email: "jane@ledgerly.io", Source: "contactfinder",
			VerificationStatus: model.VerificationValid,
		}},
	}}
	h, st := newTestServer(t, adapter)
	require.NoError(t, st.CreateCompany(context.Background(), &model.Company{ID: "c1", Name: "Ledgerly", Domain: "ledgerly.io"}))

	rr := do(t, h, http.MethodPost, "/enrich/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody[model.EnrichmentOutcome](t, rr)
	assert.Equal(t, model.RunEnriched, out.Status)
	assert.Equal(t, 1, out.ContactsFound)
	assert.Equal(t, 15+15+20, out.QualityScore)

	rr = do(t, h, http.MethodGet, "/companies/c1", nil)
	got := decodeBody[companyResponse](t, rr)
	require.Len(t, got.Contacts, 1)
	assert.True(t, got.Contacts[0].Verified)

	emb, err := st.GetEmbedding(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, emb)

	rr = do(t, h, http.MethodPost, "/enrich/batch", map[string]any{"ids": []string{"c1", "missing"}})
	require.Equal(t, http.StatusOK, rr.Code)
	batch := decodeBody[map[string][]model.EnrichmentOutcome](t, rr)["outcomes"]
	require.Len(t, batch, 2)
	assert.Equal(t, model.RunEnriched, batch[0].Status)
	assert.Equal(t, model.RunFailed, batch[1].Status)

	rr = do(t, h, http.MethodPost, "/enrich/batch", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/enrich/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/enrich/auto", map[string]int{"limit": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/enrich/auto", map[string]int{"limit": 5})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/runs?status=enriched", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	runs := decodeBody[map[string][]model.EnrichmentRun](t, rr)["runs"]
	require.Len(t, runs, 1)
	assert.Equal(t, "c1", runs[0].CompanyID)

	rr = do(t, h, http.MethodGet, "/runs?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_ResetFailedRun(t *testing.T) {
	h, st := newTestServer(t, staticAdapter{name: "webresearch", err: errors.New("unexpected status 401")})
	require.NoError(t, st.CreateCompany(context.Background(), &model.Company{ID: "c1", Name: "Ledgerly", Domain: "ledgerly.io"}))

	rr := do(t, h, http.MethodPost, "/enrich/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody[model.EnrichmentOutcome](t, rr)
	assert.Equal(t, model.RunFailed, out.Status)
	assert.Contains(t, out.ProviderErrors, "webresearch")

	rr = do(t, h, http.MethodPost, "/runs/c1/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.RunPending, decodeBody[model.EnrichmentRun](t, rr).Status)

	rr = do(t, h, http.MethodPost, "/runs/c1/reset", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/runs/other/reset", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_ReindexSearchReplay(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.CreateCompany(ctx, &model.Company{ID: "c1", Name: "Ledgerly", Industry: "Fintech"}))
	require.NoError(t, st.CreateCompany(ctx, &model.Company{ID: "c2", Name: "Greenfield", Industry: "Agriculture"}))

	rr := do(t, h, http.MethodPost, "/reindex", map[string]any{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 2, decodeBody[map[string]float64](t, rr)["embedded"])

	rr = do(t, h, http.MethodPost, "/reindex", map[string]string{"company_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/search", map[string]any{"query": "fintech", "limit": 10, "account_id": "acct"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[searchResponse](t, rr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].CompanyID)
	assert.Equal(t, model.SourceHybrid, resp.Results[0].Source)
	assert.Equal(t, model.SearchCompleted, resp.Request.Status)

	rr = do(t, h, http.MethodGet, "/search/"+resp.Request.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	replay := decodeBody[searchResponse](t, rr)
	assert.Equal(t, resp.Results, replay.Results)
	assert.Equal(t, "acct", replay.Request.AccountID)

	rr = do(t, h, http.MethodGet, "/search/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
