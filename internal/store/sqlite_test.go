package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	c := &model.Company{Name: "Acme", Industry: "Fintech"}
	require.NoError(t, st.CreateCompany(ctx, c))
	require.NoError(t, st.UpsertEmbedding(ctx, model.EmbeddingRecord{CompanyID: c.ID, Vector: []float32{0.5, 0.25}, Model: "m"}))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fintech", got.Industry)

	rec, err := st.GetEmbedding(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []float32{0.5, 0.25}, rec.Vector)
}

func TestSQLite_NearestEmbeddings_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	out, err := st.NearestEmbeddings(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSQLite_SaveSearchResults_UnknownRequest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, c))

	err := st.SaveSearchResults(ctx, []model.SearchResult{{SearchRequestID: "ghost", CompanyID: c.ID, Source: model.SourceLexical, Rank: 1}})
	assert.Error(t, err)
}
