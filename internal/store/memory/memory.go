// Package memory provides an in-process implementation of store.Store used by
// tests and the memory:// DSN. Transactions operate on a cloned state that
// replaces the live state on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"questlog/internal/store"
)

var _ store.Store = (*Store)(nil)

type record struct {
	seq int64
	doc store.Document
}

type state struct {
	seq         int64
	collections map[string]map[string]record
}

func newState() *state {
	return &state{collections: make(map[string]map[string]record)}
}

func (s *state) clone() (*state, error) {
	out := &state{seq: s.seq, collections: make(map[string]map[string]record, len(s.collections))}
	for name, docs := range s.collections {
		copied := make(map[string]record, len(docs))
		for id, rec := range docs {
			doc, err := store.Normalize(rec.doc)
			if err != nil {
				return nil, fmt.Errorf("copying %s %s: %w", name, id, err)
			}
			copied[id] = record{seq: rec.seq, doc: doc}
		}
		out.collections[name] = copied
	}
	return out, nil
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) EnsureSchema(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Collections) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working, err := s.state.clone()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(ctx, &view{state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.state = working
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{state: s.state}).Insert(ctx, collection, doc)
}

func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&view{state: s.state}).FindByID(ctx, collection, id)
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&view{state: s.state}).Find(ctx, collection, filter)
}

func (s *Store) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	var result store.UpdateResult
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		var err error
		result, err = tx.UpdateOne(ctx, collection, filter, update)
		return err
	})
	return result, err
}

func (s *Store) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	var result store.UpdateResult
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		var err error
		result, err = tx.UpdateMany(ctx, collection, filter, update)
		return err
	})
	return result, err
}

func (s *Store) DeleteOne(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{state: s.state}).DeleteOne(ctx, collection, filter)
}

// view implements store.Collections over a state. Callers hold the lock.
type view struct {
	state *state
}

func (v *view) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized, err := store.Normalize(doc)
	if err != nil {
		return "", err
	}
	id := normalized.ID()
	if id == "" {
		id = uuid.NewString()
		normalized[store.IDField] = id
	}

	docs := v.state.collections[collection]
	if docs == nil {
		docs = make(map[string]record)
		v.state.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return "", fmt.Errorf("inserting into %s: duplicate id %s", collection, id)
	}
	v.state.seq++
	docs[id] = record{seq: v.state.seq, doc: normalized}
	return id, nil
}

func (v *view) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := v.state.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Normalize(rec.doc)
}

func (v *view) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	matched := v.matching(collection, filter)
	out := make([]store.Document, 0, len(matched))
	for _, rec := range matched {
		doc, err := store.Normalize(rec.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (v *view) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	return v.update(ctx, collection, filter, update, 1)
}

func (v *view) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	return v.update(ctx, collection, filter, update, 0)
}

func (v *view) DeleteOne(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	matched := v.matching(collection, filter)
	if len(matched) == 0 {
		return 0, nil
	}
	delete(v.state.collections[collection], matched[0].doc.ID())
	return 1, nil
}

func (v *view) update(ctx context.Context, collection string, filter store.Filter, update store.Update, limit int) (store.UpdateResult, error) {
	var result store.UpdateResult
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := filter.Validate(); err != nil {
		return result, err
	}
	if err := update.Validate(); err != nil {
		return result, err
	}

	matched := v.matching(collection, filter)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	for _, rec := range matched {
		result.Matched++
		changed, err := store.Apply(rec.doc, update)
		if err != nil {
			return result, fmt.Errorf("updating %s %s: %w", collection, rec.doc.ID(), err)
		}
		if changed {
			result.Modified++
		}
	}
	return result, nil
}

func (v *view) matching(collection string, filter store.Filter) []record {
	docs := v.state.collections[collection]
	if filter.ID != "" {
		rec, ok := docs[filter.ID]
		if !ok || !store.Matches(rec.doc, filter) {
			return nil
		}
		return []record{rec}
	}

	out := make([]record, 0)
	for _, rec := range docs {
		if store.Matches(rec.doc, filter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
