package cost

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/model"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]model.CostRecord
	err     error
}

func (f *fakeSink) AppendCosts(_ context.Context, records []model.CostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, records)
	return nil
}

func TestLedger_AddAndFlush(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(NewCalculator(testPricing()), sink)
	l := rec.Ledger("c1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add(Usage{Provider: ProviderHunter, Requests: 1})
		}()
	}
	wg.Wait()
	assert.Zero(t, l.Add(Usage{Provider: ProviderHunter}))

	assert.InDelta(t, 0.04, l.Total(), 1e-9)
	require.NoError(t, l.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 4)
	assert.Equal(t, "c1", sink.batches[0][0].CompanyID)

	// Nothing left to flush.
	require.NoError(t, l.Flush(context.Background()))
	assert.Len(t, sink.batches, 1)
}

func TestLedger_FlushFailureKeepsRecords(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	l := NewRecorder(NewCalculator(testPricing()), sink).Ledger("c1")
	l.Add(Usage{Provider: ProviderPerplexity, Requests: 1})

	require.Error(t, l.Flush(context.Background()))

	sink.err = nil
	require.NoError(t, l.Flush(context.Background()))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 1)
}

func TestRecorder_Record(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(NewCalculator(testPricing()), sink)

	usd, err := rec.Record(context.Background(), "", Usage{Provider: ProviderAnthropic, Model: "haiku", InputTokens: 1000, CacheReadTokens: 1000, OutputTokens: 100})
	require.NoError(t, err)
	assert.Greater(t, usd, 0.0)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, int64(2000), sink.batches[0][0].InputTokens)
	assert.NotEmpty(t, sink.batches[0][0].ID)
}
