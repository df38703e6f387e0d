package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindByID when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// IDField is the document key holding the generated identifier.
const IDField = "_id"

// Collections is the per-collection document API. It is implemented by every
// backend and by the transaction handle passed to WithTx.
type Collections interface {
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	FindByID(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error)
	UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
}

type Store interface {
	Collections

	// WithTx runs fn against a transactional view. Writes made through the
	// view are committed when fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Collections) error) error

	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}
