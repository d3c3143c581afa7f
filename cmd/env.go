package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/caretext/arena-cli/internal/manifest"
	"github.com/caretext/arena-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "arena.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initManifest() (*manifest.Manifest, *manifest.ContentStore, error) {
	m, err := manifest.Load(cfg.Manifest.Path)
	if err != nil {
		return nil, nil, err
	}
	content, err := manifest.LoadContent(m)
	if err != nil {
		return nil, nil, err
	}
	return m, content, nil
}
