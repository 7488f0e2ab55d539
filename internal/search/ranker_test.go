package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// mapEmbedder returns fixed vectors per query.
type mapEmbedder struct {
	vecs  map[string][]float32
	calls int
	err   error
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func defaultSearchConfig() config.SearchConfig {
	return config.SearchConfig{LexicalWeight: 0.4, VectorWeight: 0.6, LexicalCandidates: 100, VectorCandidates: 100}
}

func seedCorpus(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []model.Company{
		{ID: "c1", Name: "Ledgerly", Industry: "Fintech", Description: "Bookkeeping for startups"},
		{ID: "c2", Name: "Coinbridge", Industry: "Payments", Description: "Digital banking rails"},
		{ID: "c3", Name: "Greenfield", Industry: "Agriculture", Description: "Crop analytics"},
	} {
		require.NoError(t, st.CreateCompany(ctx, &c))
	}
}

func putEmbedding(t *testing.T, st *store.MemoryStore, id string, v []float32) {
	t.Helper()
	require.NoError(t, st.UpsertEmbedding(context.Background(), model.EmbeddingRecord{
		CompanyID: id, Vector: v, Model: "test", TextHash: "h", UpdatedAt: time.Now(),
	}))
}

func TestSearch_LexicalOnlyAndVectorOnly(t *testing.T) {
	st := store.NewMemory()
	seedCorpus(t, st)
	putEmbedding(t, st, "c2", []float32{1, 0, 0})
	putEmbedding(t, st, "c3", []float32{0, 1, 0})

	emb := &mapEmbedder{vecs: map[string][]float32{"fintech": {1, 0, 0}}}
	r, err := NewRanker(st, st, emb, defaultSearchConfig())
	require.NoError(t, err)

	got, err := r.Search(context.Background(), "fintech", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c2", got[0].CompanyID)
	assert.Equal(t, model.SourceVector, got[0].Source)
	assert.InDelta(t, 0.6, got[0].Score, 1e-9)
	assert.Zero(t, got[0].LexicalScore)

	assert.Equal(t, "c1", got[1].CompanyID)
	assert.Equal(t, model.SourceLexical, got[1].Source)
	assert.InDelta(t, 0.4, got[1].Score, 1e-9)
	assert.Zero(t, got[1].VectorScore)
}

func TestSearch_ZeroEmbeddingsIsLexicalOrder(t *testing.T) {
	st := store.NewMemory()
	seedCorpus(t, st)
	emb := &mapEmbedder{}
	r, err := NewRanker(st, st, emb, defaultSearchConfig())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := r.Search(ctx, "digital fintech startups", 10)
	require.NoError(t, err)
	assert.Zero(t, emb.calls)

	lex, err := st.SearchLexical(ctx, "digital fintech startups", 100)
	require.NoError(t, err)
	require.Len(t, got, len(lex))
	for i := range lex {
		assert.Equal(t, lex[i].CompanyID, got[i].CompanyID)
	}
}

func TestSearch_EmbedderFailureDegradesToLexical(t *testing.T) {
	st := store.NewMemory()
	seedCorpus(t, st)
	putEmbedding(t, st, "c2", []float32{1, 0, 0})

	r, err := NewRanker(st, st, &mapEmbedder{err: errors.New("embedding endpoint down")}, defaultSearchConfig())
	require.NoError(t, err)

	got, err := r.Search(context.Background(), "fintech", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].CompanyID)
}

func TestSearch_Deterministic(t *testing.T) {
	st := store.NewMemory()
	seedCorpus(t, st)
	putEmbedding(t, st, "c1", []float32{1, 1, 0})
	putEmbedding(t, st, "c2", []float32{1, 0, 0})
	putEmbedding(t, st, "c3", []float32{0, 1, 0})

	r, err := NewRanker(st, st, &mapEmbedder{vecs: map[string][]float32{"fintech banking": {1, 0.5, 0}}}, defaultSearchConfig())
	require.NoError(t, err)

	first, err := r.Search(context.Background(), "fintech banking", 10)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := r.Search(context.Background(), "fintech banking", 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearch_Validation(t *testing.T) {
	st := store.NewMemory()
	r, err := NewRanker(st, st, nil, defaultSearchConfig())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "   ", 10)
	assert.True(t, fault.Is(err, fault.KindValidation))

	_, err = r.Search(context.Background(), "fintech", 0)
	assert.True(t, fault.Is(err, fault.KindValidation))
}

func TestSearch_Limit(t *testing.T) {
	st := store.NewMemory()
	seedCorpus(t, st)
	r, err := NewRanker(st, st, nil, defaultSearchConfig())
	require.NoError(t, err)

	got, err := r.Search(context.Background(), "fintech payments agriculture", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNewRanker_Weights(t *testing.T) {
	st := store.NewMemory()
	_, err := NewRanker(st, st, nil, config.SearchConfig{LexicalWeight: 0.5, VectorWeight: 0.6})
	assert.True(t, fault.Is(err, fault.KindValidation))

	_, err = NewRanker(st, st, nil, config.SearchConfig{LexicalWeight: -0.2, VectorWeight: 1.2})
	assert.True(t, fault.Is(err, fault.KindValidation))

	r, err := NewRanker(st, st, nil, config.SearchConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), r.weights)
}

func TestFuse(t *testing.T) {
	w := DefaultWeights()

	t.Run("lexical scores normalized by max", func(t *testing.T) {
		got := Fuse([]model.ScoredID{
			{CompanyID: "a", Name: "A", Score: 8},
			{CompanyID: "b", Name: "B", Score: 2},
		}, nil, w, 10)
		require.Len(t, got, 2)
		assert.InDelta(t, 1.0, got[0].LexicalScore, 1e-9)
		assert.InDelta(t, 0.25, got[1].LexicalScore, 1e-9)
		assert.InDelta(t, 0.1, got[1].Score, 1e-9)
	})

	t.Run("cosine clamped and zero hits dropped", func(t *testing.T) {
		got := Fuse(nil, []model.ScoredID{
			{CompanyID: "a", Name: "A", Score: 1.0000001},
			{CompanyID: "b", Name: "B", Score: -0.4},
			{CompanyID: "c", Name: "C", Score: 0},
		}, w, 10)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].CompanyID)
		assert.InDelta(t, 1.0, got[0].VectorScore, 1e-9)
	})

	t.Run("both components give hybrid", func(t *testing.T) {
		got := Fuse(
			[]model.ScoredID{{CompanyID: "a", Name: "A", Score: 3}},
			[]model.ScoredID{{CompanyID: "a", Score: 0.5}},
			w, 10)
		require.Len(t, got, 1)
		assert.Equal(t, model.SourceHybrid, got[0].Source)
		assert.Equal(t, "A", got[0].Name)
		assert.InDelta(t, 0.4+0.3, got[0].Score, 1e-9)
	})

	t.Run("ties by name then id", func(t *testing.T) {
		got := Fuse([]model.ScoredID{
			{CompanyID: "z", Name: "Beta", Score: 1},
			{CompanyID: "y", Name: "Alpha", Score: 1},
			{CompanyID: "x", Name: "Alpha", Score: 1},
		}, nil, w, 10)
		ids := []string{got[0].CompanyID, got[1].CompanyID, got[2].CompanyID}
		assert.Equal(t, []string{"x", "y", "z"}, ids)
	})

	t.Run("truncates to limit", func(t *testing.T) {
		got := Fuse([]model.ScoredID{
			{CompanyID: "a", Score: 3}, {CompanyID: "b", Score: 2}, {CompanyID: "c", Score: 1},
		}, nil, w, 2)
		assert.Len(t, got, 2)
	})
}
