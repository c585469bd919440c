package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/indicator"
	"github.com/walkshed/access-cli/internal/store"
)

var catalogPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog YAML file (default: catalog.path config, then built-in)")
}

// openStore opens the configured store backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		st = pg
	default:
		sq, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		st = sq
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadCatalog resolves the active indicator catalog: the --catalog flag
// wins, then the config path, then the built-in catalog.
func loadCatalog() (indicator.Catalog, error) {
	path := catalogPath
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		return indicator.Default(), nil
	}
	return indicator.Load(path)
}
