package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// runTracker keeps the latest run per company in memory and mirrors every
// transition to the run repository. A failed save is logged; the in-memory
// state stays authoritative for this process.
type runTracker struct {
	repo store.RunRepository
	now  func() time.Time

	mu   sync.Mutex
	runs map[string]model.EnrichmentRun
}

func newRunTracker(repo store.RunRepository, now func() time.Time) *runTracker {
	return &runTracker{repo: repo, now: now, runs: make(map[string]model.EnrichmentRun)}
}

func (t *runTracker) start(ctx context.Context, companyID string) {
	now := t.now()
	t.mu.Lock()
	run := t.runs[companyID]
	run.CompanyID = companyID
	run.Status = model.RunInProgress
	run.FailedReason = ""
	run.Retryable = false
	run.Attempts++
	run.StartedAt = &now
	run.FinishedAt = nil
	t.runs[companyID] = run
	t.mu.Unlock()

	t.save(ctx, run)
}

func (t *runTracker) finish(ctx context.Context, companyID string, status model.RunStatus, reason string, retryable bool) {
	now := t.now()
	t.mu.Lock()
	run := t.runs[companyID]
	run.CompanyID = companyID
	run.Status = status
	run.FailedReason = reason
	run.Retryable = retryable
	run.FinishedAt = &now
	t.runs[companyID] = run
	t.mu.Unlock()

	t.save(ctx, run)
}

func (t *runTracker) save(ctx context.Context, run model.EnrichmentRun) {
	if err := t.repo.SaveRun(ctx, run); err != nil {
		zap.L().Warn("enrich: save run failed",
			zap.String("company_id", run.CompanyID),
			zap.String("status", string(run.Status)),
			zap.Error(err),
		)
	}
}

// Runs lists persisted runs, optionally filtered by status.
func (o *Orchestrator) Runs(ctx context.Context, filter store.RunFilter) ([]model.EnrichmentRun, error) {
	runs, err := o.repo.ListRuns(ctx, filter)
	if err != nil {
		return nil, fault.Persistence("enrich: list runs", err)
	}
	return runs, nil
}

// ResetFailed moves a failed run back to pending so the company can be
// enriched again. Only failed runs can be reset.
func (o *Orchestrator) ResetFailed(ctx context.Context, companyID string) (*model.EnrichmentRun, error) {
	t := o.runs
	t.mu.Lock()
	run, ok := t.runs[companyID]
	t.mu.Unlock()

	if !ok {
		failed, err := o.repo.ListRuns(ctx, store.RunFilter{Status: model.RunFailed})
		if err != nil {
			return nil, fault.Persistence("enrich: reset run", err)
		}
		for _, r := range failed {
			if r.CompanyID == companyID {
				run, ok = r, true
				break
			}
		}
	}
	if !ok {
		return nil, fault.NotFound("enrich: reset run", "run", companyID)
	}
	if run.Status != model.RunFailed {
		return nil, fault.Validationf("enrich: reset run", "run for %q is %s, not failed", companyID, run.Status)
	}

	run.Status = model.RunPending
	run.FailedReason = ""
	run.Retryable = false
	run.StartedAt = nil
	run.FinishedAt = nil

	if err := o.repo.SaveRun(ctx, run); err != nil {
		return nil, fault.Persistence("enrich: reset run", err)
	}
	t.mu.Lock()
	t.runs[companyID] = run
	t.mu.Unlock()

	zap.L().Info("enrich: run reset", zap.String("company_id", companyID), zap.Int("attempts", run.Attempts))
	return &run, nil
}
