package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"questlog/internal/campaign"
	"questlog/internal/config"
	"questlog/internal/relation"
	"questlog/internal/store"
	"questlog/internal/store/memory"
	"questlog/internal/store/postgres"
	"questlog/internal/store/sqlite"
)

// openDB picks a backend from the DSN scheme.
func openDB(ctx context.Context, dsn string) (store.Store, error) {
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("database DSN %q has no scheme", dsn)
	}
	switch scheme {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(ctx, dsn)
	case "postgres", "postgresql":
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// environment is what most commands need: an open store with its schema
// applied, the entity schema and the services built on top of them.
type environment struct {
	db       store.Store
	schema   *config.Schema
	engine   *relation.Engine
	campaign *campaign.Service
	logger   *slog.Logger
}

func openEnvironment(ctx context.Context) (*environment, error) {
	logger := newLogger()

	schema, err := config.LoadSchema(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	engine := relation.NewEngine(db, logger)
	return &environment{
		db:       db,
		schema:   schema,
		engine:   engine,
		campaign: campaign.NewService(db, engine, schema, logger),
		logger:   logger,
	}, nil
}

func (e *environment) Close(ctx context.Context) {
	if err := e.db.Close(ctx); err != nil {
		e.logger.Warn("closing database", "error", err)
	}
}
