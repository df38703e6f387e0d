package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"questlog/internal/store"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{pool: pool}, nil
}

func (c *Client) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}

// WithTx runs fn in a SERIALIZABLE transaction. Conflicting concurrent
// relationship updates fail with a serialization error instead of interleaving.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Collections) error) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &collections{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	return (&collections{q: c.pool}).Insert(ctx, collection, doc)
}

func (c *Client) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	return (&collections{q: c.pool}).FindByID(ctx, collection, id)
}

func (c *Client) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	return (&collections{q: c.pool}).Find(ctx, collection, filter)
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
	return (&collections{q: c.pool}).DeleteOne(ctx, collection, filter)
}
