package enrich

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-intel/internal/model"
)

// EnrichBatch enriches ids with bounded concurrency and returns one outcome
// per id in input order. Cancelling ctx stops companies that have not
// started; runs already in flight finish and persist.
func (o *Orchestrator) EnrichBatch(ctx context.Context, ids []string) []model.EnrichmentOutcome {
	outcomes := make([]model.EnrichmentOutcome, len(ids))
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, id := range ids {
		if ctx.Err() != nil {
			outcomes[i] = cancelledOutcome(id)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = cancelledOutcome(id)
				return nil
			}
			out, err := o.EnrichOne(work, id)
			switch {
			case out != nil:
				outcomes[i] = *out
			case err != nil:
				outcomes[i] = model.EnrichmentOutcome{CompanyID: id, Status: model.RunFailed, Error: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()

	enriched, failed := 0, 0
	for _, out := range outcomes {
		if out.Status == model.RunEnriched {
			enriched++
		} else {
			failed++
		}
	}
	zap.L().Info("enrich: batch complete",
		zap.Int("companies", len(ids)),
		zap.Int("enriched", enriched),
		zap.Int("failed", failed),
	)
	return outcomes
}

// AutoEnrich selects up to limit candidates and enriches them as a batch.
func (o *Orchestrator) AutoEnrich(ctx context.Context, limit int) ([]model.EnrichmentOutcome, error) {
	cands, err := o.SelectCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return o.EnrichBatch(ctx, ids), nil
}

func cancelledOutcome(id string) model.EnrichmentOutcome {
	return model.EnrichmentOutcome{CompanyID: id, Status: model.RunFailed, Error: errCancelled.Error()}
}
