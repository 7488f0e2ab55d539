package search

import (
	"context"
	"errors"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// Index is a bleve full-text index over company name, industry and
// description. It serves as the lexical source for stores without native
// full-text search.
type Index struct {
	index bleve.Index
}

var _ store.LexicalSource = (*Index)(nil)

// companyDoc is the indexed form of a company.
type companyDoc struct {
	Name        string
	Industry    string
	Description string
}

// Field boosts mirror the Postgres tsvector weights A, B and C.
const (
	boostName        = 3
	boostIndustry    = 2
	boostDescription = 1
)

// OpenIndex opens the index at path, creating it when missing.
func OpenIndex(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, eris.Wrapf(err, "search: create index %s", path)
		}
	} else if err != nil {
		return nil, eris.Wrapf(err, "search: open index %s", path)
	}
	return &Index{index: idx}, nil
}

// NewMemIndex creates an in-memory index.
func NewMemIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, eris.Wrap(err, "search: create memory index")
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("Name", text)
	doc.AddFieldMappingsAt("Industry", text)
	doc.AddFieldMappingsAt("Description", text)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexCompany adds or replaces a company document.
func (i *Index) IndexCompany(c model.Company) error {
	if err := i.index.Index(c.ID, companyDoc{Name: c.Name, Industry: c.Industry, Description: c.Description}); err != nil {
		return eris.Wrapf(err, "search: index company %s", c.ID)
	}
	return nil
}

// Count returns the number of indexed companies.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Rebuild indexes every company in repo in pages.
func (i *Index) Rebuild(ctx context.Context, repo store.CompanyRepository) (int, error) {
	const pageSize = 500
	total := 0
	for offset := 0; ; offset += pageSize {
		cs, err := repo.ListCompanies(ctx, store.CompanyFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return total, eris.Wrap(err, "search: list companies")
		}
		if len(cs) == 0 {
			return total, nil
		}
		batch := i.index.NewBatch()
		for _, c := range cs {
			if err := batch.Index(c.ID, companyDoc{Name: c.Name, Industry: c.Industry, Description: c.Description}); err != nil {
				return total, eris.Wrapf(err, "search: batch index %s", c.ID)
			}
		}
		if err := i.index.Batch(batch); err != nil {
			return total, eris.Wrap(err, "search: commit batch")
		}
		total += len(cs)
		if len(cs) < pageSize {
			return total, nil
		}
	}
}

// SearchLexical implements store.LexicalSource.
func (i *Index) SearchLexical(_ context.Context, q string, limit int) ([]model.ScoredID, error) {
	fields := []struct {
		name  string
		boost float64
	}{
		{"Name", boostName},
		{"Industry", boostIndustry},
		{"Description", boostDescription},
	}
	qs := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(q)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		qs = append(qs, mq)
	}

	if limit <= 0 {
		limit = 100
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"Name"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, eris.Wrap(err, "search: lexical query")
	}

	out := make([]model.ScoredID, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score <= 0 {
			continue
		}
		name, _ := hit.Fields["Name"].(string)
		out = append(out, model.ScoredID{CompanyID: hit.ID, Name: name, Score: hit.Score})
	}
	return out, nil
}
