package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/fault"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
	"github.com/sells-group/company-intel/internal/vector"
)

// Repository is the persistence the indexer needs.
type Repository interface {
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	store.EmbeddingRepository
}

// TextIndexer mirrors companies into a lexical index.
type TextIndexer interface {
	IndexCompany(c model.Company) error
}

// CostRecorder records priced calls.
type CostRecorder interface {
	Record(ctx context.Context, companyID string, u cost.Usage) (float64, error)
}

// Progress receives batch reindex callbacks. Either field may be nil.
type Progress struct {
	Start func(total int)
	Step  func(companyID string, err error)
}

// Indexer keeps one embedding per company in step with its descriptive
// text.
type Indexer struct {
	repo     Repository
	embedder Embedder
	workers  int
	text     TextIndexer
	costs    CostRecorder
	now      func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithTextIndexer also feeds every reindexed company to a lexical index.
func WithTextIndexer(t TextIndexer) Option {
	return func(ix *Indexer) { ix.text = t }
}

// WithCostRecorder records an embedding cost per embedded company.
func WithCostRecorder(r CostRecorder) Option {
	return func(ix *Indexer) { ix.costs = r }
}

// NewIndexer creates an Indexer running batches on workers goroutines.
func NewIndexer(repo Repository, embedder Embedder, workers int, opts ...Option) *Indexer {
	if workers < 1 {
		workers = 1
	}
	ix := &Indexer{repo: repo, embedder: embedder, workers: workers, now: time.Now}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Text returns the descriptive text embedded for a company: name, industry
// and description on separate lines, blank parts skipped.
func Text(c model.Company) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Name, c.Industry, c.Description} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// TextHash is the hex sha256 of text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Reindex embeds a company's current text and stores the vector.
func (ix *Indexer) Reindex(ctx context.Context, companyID string) error {
	p, err := ix.prepare(ctx, companyID)
	if err != nil || p == nil {
		return err
	}
	billed := !ix.cached(p.text)
	vec, err := ix.embedder.Embed(ctx, p.text)
	if err != nil {
		return fault.Provider("embed: embed company", err)
	}
	return ix.save(ctx, *p, vec, billed)
}

// pending is a company whose text needs a fresh embedding.
type pending struct {
	id   string
	text string
	hash string
}

// prepare loads a company, mirrors it into the lexical index and returns
// the text to embed. A record whose hash and model already match is only
// touched so it stops counting as stale, and prepare returns nil.
func (ix *Indexer) prepare(ctx context.Context, companyID string) (*pending, error) {
	c, err := ix.repo.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	text := Text(*c)
	if text == "" {
		return nil, fault.Validationf("embed: reindex", "company %q has no descriptive text", companyID)
	}
	hash := TextHash(text)

	if ix.text != nil {
		if err := ix.text.IndexCompany(*c); err != nil {
			zap.L().Warn("embed: lexical index update failed", zap.String("company_id", companyID), zap.Error(err))
		}
	}

	existing, err := ix.repo.GetEmbedding(ctx, companyID)
	if err != nil {
		return nil, fault.Persistence("embed: get embedding", err)
	}
	if existing != nil && existing.TextHash == hash && existing.Model == ix.embedder.Model() {
		existing.UpdatedAt = ix.now().UTC()
		if err := ix.repo.UpsertEmbedding(ctx, *existing); err != nil {
			return nil, fault.Persistence("embed: touch embedding", err)
		}
		return nil, nil
	}
	return &pending{id: companyID, text: text, hash: hash}, nil
}

// save stores vec for p. billed records the embedding cost for calls that
// reached the provider.
func (ix *Indexer) save(ctx context.Context, p pending, vec []float32, billed bool) error {
	if billed {
		ix.recordCost(ctx, p.id, p.text)
	}
	rec := model.EmbeddingRecord{
		CompanyID: p.id,
		Vector:    vector.Normalize(vec),
		Model:     ix.embedder.Model(),
		TextHash:  p.hash,
		UpdatedAt: ix.now().UTC(),
	}
	if err := ix.repo.UpsertEmbedding(ctx, rec); err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return err
		}
		return fault.Persistence("embed: upsert embedding", err)
	}
	return nil
}

// cached reports whether the embedder can answer text without a provider
// call.
func (ix *Indexer) cached(text string) bool {
	hc, ok := ix.embedder.(hitChecker)
	return ok && hc.Cached(text)
}

func (ix *Indexer) recordCost(ctx context.Context, companyID, text string) {
	if ix.costs == nil {
		return
	}
	u := cost.Usage{
		Provider:    cost.ProviderEmbedding,
		Model:       ix.embedder.Model(),
		InputTokens: approxTokens(text),
		Requests:    1,
	}
	if _, err := ix.costs.Record(ctx, companyID, u); err != nil {
		zap.L().Warn("embed: record cost failed", zap.String("company_id", companyID), zap.Error(err))
	}
}

// approxTokens estimates tokens at four bytes each.
func approxTokens(text string) int64 {
	return int64(len(text)+3) / 4
}

// BatchReindex reindexes up to limit companies whose embedding is missing or
// stale and returns how many were embedded. Item failures are logged and
// skipped.
func (ix *Indexer) BatchReindex(ctx context.Context, limit int) (int, error) {
	return ix.BatchReindexProgress(ctx, limit, Progress{})
}

// BatchReindexProgress is BatchReindex with progress callbacks. Texts are
// embedded in batches of batchSize; a failed batch is retried one text at a
// time so a single bad item only fails itself.
func (ix *Indexer) BatchReindexProgress(ctx context.Context, limit int, progress Progress) (int, error) {
	cands, err := ix.repo.ListEmbeddingCandidates(ctx, limit)
	if err != nil {
		return 0, fault.Persistence("embed: list candidates", err)
	}
	if progress.Start != nil {
		progress.Start(len(cands))
	}
	if len(cands) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return 0, eris.Wrap(err, "embed: create pool")
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		embedded atomic.Int64
		mu       sync.Mutex
		todo     []pending
	)
	step := func(id string, err error) {
		if err != nil {
			zap.L().Warn("embed: reindex failed", zap.String("company_id", id), zap.Error(err))
		}
		if progress.Step == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		progress.Step(id, err)
	}
	submit := func(id string, task func()) {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			zap.L().Warn("embed: submit failed", zap.String("company_id", id), zap.Error(err))
		}
	}

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		id := c.ID
		submit(id, func() {
			p, err := ix.prepare(ctx, id)
			if err != nil || p == nil {
				step(id, err)
				return
			}
			mu.Lock()
			todo = append(todo, *p)
			mu.Unlock()
		})
	}
	wg.Wait()

	for start := 0; start < len(todo); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		chunk := todo[start:min(start+batchSize, len(todo))]
		submit(chunk[0].id, func() {
			errs := ix.embedChunk(ctx, chunk)
			for i, p := range chunk {
				if errs[i] == nil {
					embedded.Add(1)
				}
				step(p.id, errs[i])
			}
		})
	}
	wg.Wait()

	n := int(embedded.Load())
	zap.L().Info("embed: batch reindex complete",
		zap.Int("candidates", len(cands)),
		zap.Int("embedded", n),
	)
	return n, nil
}

// batchSize is the number of texts sent per EmbedBatch call.
const batchSize = 32

// embedChunk embeds and stores chunk, returning one error per item.
func (ix *Indexer) embedChunk(ctx context.Context, chunk []pending) []error {
	texts := make([]string, len(chunk))
	billed := make([]bool, len(chunk))
	for i, p := range chunk {
		texts[i] = p.text
		billed[i] = !ix.cached(p.text)
	}

	errs := make([]error, len(chunk))
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(chunk) {
		err = eris.Errorf("embed: got %d embeddings for %d texts", len(vecs), len(chunk))
	}
	if err == nil {
		for i, p := range chunk {
			errs[i] = ix.save(ctx, p, vecs[i], billed[i])
		}
		return errs
	}

	zap.L().Warn("embed: batch embed failed, embedding one at a time",
		zap.Int("texts", len(texts)),
		zap.Error(err),
	)
	for i, p := range chunk {
		vec, err := ix.embedder.Embed(ctx, p.text)
		if err != nil {
			errs[i] = fault.Provider("embed: embed company", err)
			continue
		}
		errs[i] = ix.save(ctx, p, vec, billed[i])
	}
	return errs
}
