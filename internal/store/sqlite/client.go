package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"questlog/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Client, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time; an in-memory database also only exists on the
	// connection that created it.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	return &Client{db: db}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Collections) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &collections{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	return (&collections{q: c.db}).Insert(ctx, collection, doc)
}

func (c *Client) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	return (&collections{q: c.db}).FindByID(ctx, collection, id)
}

func (c *Client) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	return (&collections{q: c.db}).Find(ctx, collection, filter)
}

func (c *Client) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	var result store.UpdateResult
	err := c.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		var err error
		result, err = tx.UpdateOne(ctx, collection, filter, update)
		return err
	})
	return result, err
}

func (c *Client) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	var result store.UpdateResult
	err := c.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		var err error
		result, err = tx.UpdateMany(ctx, collection, filter, update)
		return err
	})
	return result, err
}

func (c *Client) DeleteOne(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	return (&collections{q: c.db}).DeleteOne(ctx, collection, filter)
}
