package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"fintech", "in", "austin", "tx"}, Tokenize("Fintech in Austin, TX"))
	assert.Empty(t, Tokenize("  ,.;  "))
}

func TestMemoryStore_SearchLexical(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, c := range []*model.Company{
		{ID: "c1", Name: "Fintech Labs", Industry: "Software"},
		{ID: "c2", Name: "Acme", Industry: "Fintech"},
		{ID: "c3", Name: "Globex", Description: "payments and fintech tooling"},
		{ID: "c4", Name: "Initech", Industry: "Consulting"},
	} {
		require.NoError(t, m.CreateCompany(ctx, c))
	}

	out, err := m.SearchLexical(ctx, "fintech", 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "c1", out[0].CompanyID)
	assert.Equal(t, 3.0, out[0].Score)
	assert.Equal(t, "c2", out[1].CompanyID)
	assert.Equal(t, "c3", out[2].CompanyID)

	limited, err := m.SearchLexical(ctx, "fintech", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := m.SearchLexical(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_DuplicateCompany(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateCompany(ctx, &model.Company{ID: "c1", Name: "Acme"}))
	err := m.CreateCompany(ctx, &model.Company{ID: "c1", Name: "Acme again"})
	assert.True(t, fault.Is(err, fault.KindPersistence))
	assert.Contains(t, err.Error(), "already exists")
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateCompany(ctx, &model.Company{ID: "c1", Name: "Acme"}))
	vec := []float32{1, 2}
	require.NoError(t, m.UpsertEmbedding(ctx, model.EmbeddingRecord{CompanyID: "c1", Vector: vec}))
	vec[0] = 99

	got, err := m.GetCompany(ctx, "c1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := m.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Name)

	rec, err := m.GetEmbedding(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, rec.Vector)
}

func TestMemoryStore_Costs(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.AppendCosts(context.Background(), []model.CostRecord{{Provider: "hunter", CostUSD: 0.01}}))
	assert.Len(t, m.Costs(), 1)
}
