package embed

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/vector"
)

var cacheBucket = []byte("embeddings")

// CachedEmbedder memoizes another Embedder in a bbolt file keyed by model
// and text hash. Cache failures fall through to the wrapped embedder.
type CachedEmbedder struct {
	next Embedder
	db   *bbolt.DB
}

var _ Embedder = (*CachedEmbedder)(nil)

// hitChecker is implemented by embedders that can tell whether a text is
// answered without calling the provider.
type hitChecker interface {
	Cached(text string) bool
}

var _ hitChecker = (*CachedEmbedder)(nil)

// NewCachedEmbedder opens (or creates) the cache file at path.
func NewCachedEmbedder(next Embedder, path string) (*CachedEmbedder, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, eris.Wrapf(err, "embed: open cache %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "embed: create cache bucket")
	}
	return &CachedEmbedder{next: next, db: db}, nil
}

// Close closes the cache file.
func (c *CachedEmbedder) Close() error {
	return c.db.Close()
}

// Model returns the wrapped model name.
func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) key(text string) []byte {
	return []byte(c.next.Model() + ":" + TextHash(text))
}

func (c *CachedEmbedder) get(text string) []float32 {
	var out []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(cacheBucket).Get(c.key(text)); raw != nil {
			out = vector.Decode(raw)
		}
		return nil
	})
	if err != nil {
		zap.L().Debug("embed: cache read failed", zap.Error(err))
		return nil
	}
	return out
}

func (c *CachedEmbedder) put(text string, v []float32) {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Put(c.key(text), vector.Encode(v))
	})
	if err != nil {
		zap.L().Warn("embed: cache write failed", zap.Error(err))
	}
}

// Cached reports whether text has a stored vector for the current model.
func (c *CachedEmbedder) Cached(text string) bool {
	return c.get(text) != nil
}

// Embed returns the cached vector or embeds and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v := c.get(text); v != nil {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(text, v)
	return v, nil
}

// EmbedBatch embeds only the texts missing from the cache.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing []string
		idx     []int
	)
	for i, t := range texts {
		if v := c.get(t); v != nil {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		idx = append(idx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vs, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vs {
		out[idx[j]] = v
		c.put(missing[j], v)
	}
	return out, nil
}
