package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
)

// runStoreContract exercises behavior every Store driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("company round trip", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		c := &model.Company{Name: "Acme", Industry: "Fintech", Location: "Austin, TX"}
		require.NoError(t, st.CreateCompany(ctx, c))
		require.NotEmpty(t, c.ID)
		assert.False(t, c.LastUpdated.IsZero())

		got, err := st.GetCompany(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
		assert.Equal(t, "Fintech", got.Industry)

		got.Website = "https://acme.com"
		got.DataQualityScore = 60
		require.NoError(t, st.UpdateCompany(ctx, got))

		again, err := st.GetCompany(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://acme.com", again.Website)
		assert.Equal(t, 60, again.DataQualityScore)
	})

	t.Run("missing company", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.GetCompany(ctx, "nope")
		assert.True(t, fault.Is(err, fault.KindNotFound))

		err = st.UpdateCompany(ctx, &model.Company{ID: "nope", Name: "x"})
		assert.True(t, fault.Is(err, fault.KindNotFound))
	})

	t.Run("list companies by name", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		for _, n := range []string{"Charlie", "Alpha", "Bravo"} {
			require.NoError(t, st.CreateCompany(ctx, &model.Company{Name: n, AccountID: "acct"}))
		}
		require.NoError(t, st.CreateCompany(ctx, &model.Company{Name: "Other", AccountID: "other"}))

		out, err := st.ListCompanies(ctx, CompanyFilter{AccountID: "acct", Limit: 2})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "Alpha", out[0].Name)
		assert.Equal(t, "Bravo", out[1].Name)

		out, err = st.ListCompanies(ctx, CompanyFilter{AccountID: "acct", Offset: 2})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "Charlie", out[0].Name)
	})

	t.Run("enrichment candidates oldest first", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		complete := func(name string, score int, age int) *model.Company {
			return &model.Company{
				Name: name, Industry: "Fintech", Location: "Austin", Website: "https://x.io",
				Description: "d", DataQualityScore: score, LastUpdated: base.Add(time.Duration(age) * time.Hour),
			}
		}
		fresh := complete("Fresh", 95, 3)
		low := complete("Low", 40, 2)
		gap := complete("Gap", 95, 1)
		gap.Location = ""
		for _, c := range []*model.Company{fresh, low, gap} {
			require.NoError(t, st.CreateCompany(ctx, c))
		}

		out, err := st.ListEnrichmentCandidates(ctx, 80, 10)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "Gap", out[0].Name)
		assert.Equal(t, "Low", out[1].Name)

		out, err = st.ListEnrichmentCandidates(ctx, 80, 1)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "Gap", out[0].Name)
	})

	t.Run("contact upsert keeps identity", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		co := &model.Company{Name: "Acme"}
		require.NoError(t, st.CreateCompany(ctx, co))

		first := &model.Contact{CompanyID: co.ID, FirstName: "Jane", Email: "jane@example.com",
			Source: "hunter", ConfidenceScore: 0.7, EmailVerificationStatus: model.VerificationGuessed}
		require.NoError(t, st.UpsertContact(ctx, first))
		require.NotEmpty(t, first.ID)

		second := &model.Contact{CompanyID: co.ID, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com",
			Source: "hunter", ConfidenceScore: 0.95, Verified: true, EmailVerificationStatus: model.VerificationValid}
		require.NoError(t, st.UpsertContact(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		contacts, err := st.ListContacts(ctx, co.ID)
		require.NoError(t, err)
		require.Len(t, contacts, 1)
		assert.Equal(t, "Doe", contacts[0].LastName)
		assert.InDelta(t, 0.95, contacts[0].ConfidenceScore, 1e-9)
		assert.Equal(t, model.VerificationValid, contacts[0].EmailVerificationStatus)

		got, err := st.GetContactByEmail(ctx, co.ID, "jane@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Verified)

		missing, err := st.GetContactByEmail(ctx, co.ID, "bob@example.com")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("contact for unknown company", func(t *testing.T) {
		st := newStore(t)
		err := st.UpsertContact(context.Background(), &model.Contact{CompanyID: "ghost", Email: "a@b.co"})
		assert.True(t, fault.Is(err, fault.KindNotFound))
	})

	t.Run("audit log", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		co := &model.Company{Name: "Acme"}
		require.NoError(t, st.CreateCompany(ctx, co))
		require.NoError(t, st.AppendUpdates(ctx, []model.CompanyUpdate{
			{CompanyID: co.ID, Source: "webresearch", Field: "industry", NewValue: "Fintech"},
			{CompanyID: co.ID, Source: "webresearch", Field: "location", OldValue: "TX", NewValue: "Austin, TX"},
		}))

		ups, err := st.ListUpdates(ctx, co.ID)
		require.NoError(t, err)
		require.Len(t, ups, 2)
		assert.Equal(t, "industry", ups[0].Field)
		assert.Equal(t, "TX", ups[1].OldValue)
		assert.NotEmpty(t, ups[0].ID)
	})

	t.Run("embeddings and staleness", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		a := &model.Company{Name: "Alpha", LastUpdated: base}
		b := &model.Company{Name: "Bravo", LastUpdated: base.Add(time.Hour)}
		require.NoError(t, st.CreateCompany(ctx, a))
		require.NoError(t, st.CreateCompany(ctx, b))

		cands, err := st.ListEmbeddingCandidates(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, cands, 2)

		require.NoError(t, st.UpsertEmbedding(ctx, model.EmbeddingRecord{
			CompanyID: a.ID, Vector: []float32{1, 0}, Model: "m", TextHash: "h1", UpdatedAt: base.Add(time.Minute),
		}))
		require.NoError(t, st.UpsertEmbedding(ctx, model.EmbeddingRecord{
			CompanyID: b.ID, Vector: []float32{0, 1}, Model: "m", TextHash: "h2", UpdatedAt: base.Add(2 * time.Hour),
		}))

		n, err := st.CountEmbeddings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		cands, err = st.ListEmbeddingCandidates(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, cands)

		a.LastUpdated = base.Add(3 * time.Hour)
		require.NoError(t, st.UpdateCompany(ctx, a))
		cands, err = st.ListEmbeddingCandidates(ctx, 10)
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.Equal(t, a.ID, cands[0].ID)

		rec, err := st.GetEmbedding(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, []float32{1, 0}, rec.Vector)
		assert.Equal(t, "h1", rec.TextHash)

		nearest, err := st.NearestEmbeddings(ctx, []float32{0.9, 0.1}, 1)
		require.NoError(t, err)
		require.Len(t, nearest, 1)
		assert.Equal(t, a.ID, nearest[0].CompanyID)
		assert.Equal(t, "Alpha", nearest[0].Name)

		none, err := st.GetEmbedding(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("search request lifecycle", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		co := &model.Company{Name: "Acme"}
		require.NoError(t, st.CreateCompany(ctx, co))

		req := &model.SearchRequest{AccountID: "acct", Query: "fintech in austin"}
		require.NoError(t, st.CreateSearchRequest(ctx, req))
		assert.Equal(t, model.SearchPending, req.Status)

		done := time.Now().UTC()
		req.Status = model.SearchCompleted
		req.ICP = model.ICP{Industries: []string{"fintech"}, Locations: []string{"austin"}}
		req.CompletedAt = &done
		require.NoError(t, st.FinishSearchRequest(ctx, req))

		require.NoError(t, st.SaveSearchResults(ctx, []model.SearchResult{
			{SearchRequestID: req.ID, CompanyID: co.ID, Source: model.SourceHybrid, Score: 0.8, Rank: 1},
		}))
		require.NoError(t, st.SaveSearchResults(ctx, []model.SearchResult{
			{SearchRequestID: req.ID, CompanyID: co.ID, Source: model.SourceLexical, Score: 0.5, Rank: 1},
		}))

		results, err := st.ListSearchResults(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, model.SourceLexical, results[0].Source)

		// A completed request is immutable.
		require.NoError(t, st.FinishSearchRequest(ctx, &model.SearchRequest{ID: req.ID, Status: model.SearchFailed, Error: "late"}))
		got, err := st.GetSearchRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SearchCompleted, got.Status)
		assert.Empty(t, got.Error)
		assert.Equal(t, []string{"fintech"}, got.ICP.Industries)
		require.NotNil(t, got.CompletedAt)

		_, err = st.GetSearchRequest(ctx, "missing")
		assert.True(t, fault.Is(err, fault.KindNotFound))
	})

	t.Run("runs", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		a := &model.Company{Name: "Alpha"}
		b := &model.Company{Name: "Bravo"}
		require.NoError(t, st.CreateCompany(ctx, a))
		require.NoError(t, st.CreateCompany(ctx, b))

		now := time.Now().UTC()
		require.NoError(t, st.SaveRun(ctx, model.EnrichmentRun{CompanyID: a.ID, Status: model.RunEnriched, Attempts: 1, StartedAt: &now, FinishedAt: &now}))
		require.NoError(t, st.SaveRun(ctx, model.EnrichmentRun{CompanyID: b.ID, Status: model.RunInProgress, Attempts: 1, StartedAt: &now}))
		require.NoError(t, st.SaveRun(ctx, model.EnrichmentRun{CompanyID: b.ID, Status: model.RunFailed, FailedReason: "boom", Retryable: true, Attempts: 2, StartedAt: &now, FinishedAt: &now}))

		all, err := st.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, b.ID, failed[0].CompanyID)
		assert.Equal(t, 2, failed[0].Attempts)
		assert.True(t, failed[0].Retryable)
		require.NotNil(t, failed[0].FinishedAt)
	})

	t.Run("costs", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.AppendCosts(context.Background(), nil))
		require.NoError(t, st.AppendCosts(context.Background(), []model.CostRecord{
			{CompanyID: "c1", Provider: "hunter", CostUSD: 0.01},
		}))
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}
