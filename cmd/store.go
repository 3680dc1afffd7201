package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/warehouse"
)

// initStore opens the configured warehouse. The caller closes it.
func initStore(ctx context.Context) (warehouse.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ans.db"
		}
		return warehouse.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required (ANS_STORE_DATABASE_URL)")
		}
		return warehouse.NewPostgres(ctx, cfg.Store.DatabaseURL, &warehouse.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openMigratedStore opens the warehouse and applies pending migrations.
func openMigratedStore(ctx context.Context) (warehouse.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate warehouse")
	}
	return st, nil
}
