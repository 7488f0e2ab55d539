package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

type stubDeriver struct {
	icp model.ICP
	err error
}

func (s stubDeriver) Derive(context.Context, string) (model.ICP, error) { return s.icp, s.err }

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) ([]model.RankedResult, error) {
	return nil, fault.Persistence("search: lexical candidates", errors.New("connection reset"))
}

func newTestService(t *testing.T, icp ICPDeriver) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	seedCorpus(t, st)
	r, err := NewRanker(st, st, nil, defaultSearchConfig())
	require.NoError(t, err)
	return NewService(st, r, icp), st
}

func TestService_RunAndReplay(t *testing.T) {
	svc, st := newTestService(t, stubDeriver{icp: model.ICP{Industries: []string{"Fintech"}}})
	ctx := context.Background()

	req, results, err := svc.Run(ctx, "acct-1", "  fintech payments ", 10)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, req.Status)
	assert.Equal(t, "fintech payments", req.Query)
	require.NotNil(t, req.CompletedAt)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)

	stored, err := st.GetSearchRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchCompleted, stored.Status)
	assert.Equal(t, []string{"Fintech"}, stored.ICP.Industries)
	assert.Equal(t, "acct-1", stored.AccountID)

	replayReq, replayed, err := svc.Replay(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, replayReq.ID)
	assert.Equal(t, results, replayed)
}

func TestService_ICPFailureLeavesEmptyICP(t *testing.T) {
	svc, st := newTestService(t, stubDeriver{err: errors.New("overloaded")})

	req, _, err := svc.Run(context.Background(), "", "fintech", 5)
	require.NoError(t, err)

	stored, err := st.GetSearchRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.True(t, stored.ICP.Empty())
	assert.Equal(t, model.SearchCompleted, stored.Status)
}

func TestService_RankerFailureMarksFailed(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, failingSearcher{}, nil)

	req, results, err := svc.Run(context.Background(), "", "fintech", 5)
	require.Error(t, err)
	assert.Nil(t, results)
	require.NotNil(t, req)

	stored, err := st.GetSearchRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SearchFailed, stored.Status)
	assert.Contains(t, stored.Error, "connection reset")
}

func TestService_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, _, err := svc.Run(context.Background(), "", " ", 5)
	assert.True(t, fault.Is(err, fault.KindValidation))

	_, _, err = svc.Run(context.Background(), "", "fintech", -1)
	assert.True(t, fault.Is(err, fault.KindValidation))
}

func TestService_ReplayUnknown(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, _, err := svc.Replay(context.Background(), "nope")
	assert.True(t, fault.Is(err, fault.KindNotFound))
}

func TestService_NoMatches(t *testing.T) {
	svc, _ := newTestService(t, nil)
	req, results, err := svc.Run(context.Background(), "", "shipping", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, model.SearchCompleted, req.Status)
}
