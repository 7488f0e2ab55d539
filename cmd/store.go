package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/config"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/search"
	"github.com/sells-group/company-intel/internal/store"
)

// openStore connects the configured driver and runs migrations. The sqlite
// driver also opens its bleve index, rebuilding it when empty.
func openStore(ctx context.Context, c *config.Config) (store.Store, *search.Index, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}
	if c.Store.Driver != "sqlite" {
		return st, nil, nil
	}

	idx, err := search.OpenIndex(c.Store.IndexPath)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	n, err := idx.Count()
	if err == nil && n == 0 {
		indexed, err := idx.Rebuild(ctx, st)
		if err != nil {
			_ = idx.Close()
			_ = st.Close()
			return nil, nil, err
		}
		zap.L().Info("lexical index rebuilt", zap.Int("companies", indexed))
	}
	return st, idx, nil
}

// initStore connects the configured driver. Postgres connection attempts
// are retried on transient failures.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := c.Store.SQLitePath
		if dsn == "" {
			dsn = "company-intel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		var st *store.PostgresStore
		err := resilience.Retry(ctx, resilience.DefaultRetryConfig("postgres connect"), func(ctx context.Context) error {
			var err error
			st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
				MaxConns: c.Store.MaxConns,
				MinConns: c.Store.MinConns,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}
