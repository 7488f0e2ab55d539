package cost

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
)

// Sink persists cost records. store.CostRepository satisfies it.
type Sink interface {
	AppendCosts(ctx context.Context, records []model.CostRecord) error
}

// Recorder prices usage and hands out per-run ledgers.
type Recorder struct {
	calc *Calculator
	sink Sink
	now  func() time.Time
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(calc *Calculator, sink Sink) *Recorder {
	return &Recorder{calc: calc, sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// Record prices u and writes it immediately. Used for calls outside an
// enrichment run, such as ICP derivation.
func (r *Recorder) Record(ctx context.Context, companyID string, u Usage) (float64, error) {
	rec := r.record(companyID, u)
	if err := r.sink.AppendCosts(ctx, []model.CostRecord{rec}); err != nil {
		return rec.CostUSD, eris.Wrap(err, "cost: record")
	}
	return rec.CostUSD, nil
}

// Ledger starts a buffered ledger for one company's run.
func (r *Recorder) Ledger(companyID string) *Ledger {
	return &Ledger{rec: r, companyID: companyID}
}

func (r *Recorder) record(companyID string, u Usage) model.CostRecord {
	return model.CostRecord{
		ID:           uuid.New().String(),
		CompanyID:    companyID,
		Provider:     u.Provider,
		Model:        u.Model,
		InputTokens:  u.InputTokens + u.CacheWriteTokens + u.CacheReadTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      r.calc.Price(u),
		CreatedAt:    r.now(),
	}
}

// Ledger buffers one run's cost records until Flush. Safe for concurrent
// use by the run's provider goroutines.
type Ledger struct {
	rec       *Recorder
	companyID string

	mu      sync.Mutex
	pending []model.CostRecord
	total   float64
}

// Add prices u and buffers the record. Zero usage is ignored.
func (l *Ledger) Add(u Usage) float64 {
	if u.Provider == "" || (u.Requests == 0 && u.InputTokens == 0 && u.OutputTokens == 0) {
		return 0
	}
	rec := l.rec.record(l.companyID, u)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, rec)
	l.total += rec.CostUSD
	return rec.CostUSD
}

// Total is the USD sum of everything added so far.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Flush writes buffered records and clears the buffer. On failure the
// records stay buffered.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := l.rec.sink.AppendCosts(ctx, batch); err != nil {
		l.mu.Lock()
		l.pending = append(batch, l.pending...)
		l.mu.Unlock()
		return eris.Wrapf(err, "cost: flush %d records", len(batch))
	}

	zap.L().Debug("cost ledger flushed",
		zap.String("company_id", l.companyID),
		zap.Int("records", len(batch)),
		zap.Float64("total_usd", l.Total()),
	)
	return nil
}
