// Package storetest holds a conformance suite that every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/store"
)

// Run exercises the store.Store contract against stores produced by open.
// Each subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("insert and find by id", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id, err := st.Insert(ctx, "npcs", store.Document{"name": "Grib", "gameId": "g1"})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := st.FindByID(ctx, "npcs", id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID())
		assert.Equal(t, "Grib", doc.String("name"))
	})

	t.Run("find by id missing", func(t *testing.T) {
		st := open(t)
		_, err := st.FindByID(context.Background(), "npcs", "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("insert keeps caller id", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id, err := st.Insert(ctx, "items", store.Document{store.IDField: "fixed-id", "name": "Lamp"})
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", id)

		_, err = st.Insert(ctx, "items", store.Document{store.IDField: "fixed-id"})
		assert.Error(t, err)
	})

	t.Run("find filters and keeps insertion order", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		first := mustInsert(t, st, "scenes", store.Document{"name": "Gate", "gameId": "g1", "itemIds": []any{"i1"}})
		mustInsert(t, st, "scenes", store.Document{"name": "Other", "gameId": "g2"})
		third := mustInsert(t, st, "scenes", store.Document{"name": "Keep", "gameId": "g1", "itemIds": []any{}})

		docs, err := st.Find(ctx, "scenes", store.Where("gameId", "g1"))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, first, docs[0].ID())
		assert.Equal(t, third, docs[1].ID())

		docs, err = st.Find(ctx, "scenes", store.Holding("itemIds", "i1"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, first, docs[0].ID())

		docs, err = st.Find(ctx, "players", store.Filter{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("nested equality", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id := mustInsert(t, st, "sessions", store.Document{"notes": map[string]any{"summary": "ambush"}})
		mustInsert(t, st, "sessions", store.Document{"notes": map[string]any{"summary": "rest"}})

		docs, err := st.Find(ctx, "sessions", store.Where("notes.summary", "ambush"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, id, docs[0].ID())
	})

	t.Run("update set add and pull", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id := mustInsert(t, st, "npcs", store.Document{"name": "Grib", "itemIds": []any{"a"}})

		res, err := st.UpdateOne(ctx, "npcs", store.ByID(id), store.Update{
			Set:      map[string]any{"status": "dead"},
			AddToSet: map[string]string{"itemIds": "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, store.UpdateResult{Matched: 1, Modified: 1}, res)

		res, err = st.UpdateOne(ctx, "npcs", store.ByID(id), store.Update{AddToSet: map[string]string{"itemIds": "b"}})
		require.NoError(t, err)
		assert.Equal(t, store.UpdateResult{Matched: 1, Modified: 0}, res)

		res, err = st.UpdateOne(ctx, "npcs", store.ByID(id), store.Update{Pull: map[string]string{"itemIds": "a"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Modified)

		doc, err := st.FindByID(ctx, "npcs", id)
		require.NoError(t, err)
		assert.Equal(t, "dead", doc.String("status"))
		assert.Equal(t, []string{"b"}, doc.Refs("itemIds"))
	})

	t.Run("update no match", func(t *testing.T) {
		st := open(t)
		res, err := st.UpdateOne(context.Background(), "npcs", store.ByID("missing"), store.Update{Set: map[string]any{"a": 1}})
		require.NoError(t, err)
		assert.Equal(t, store.UpdateResult{}, res)
	})

	t.Run("update many by membership", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		a := mustInsert(t, st, "players", store.Document{"itemIds": []any{"x", "y"}})
		b := mustInsert(t, st, "players", store.Document{"itemIds": []any{"x"}})
		c := mustInsert(t, st, "players", store.Document{"itemIds": []any{"y"}})

		res, err := st.UpdateMany(ctx, "players", store.Holding("itemIds", "x"), store.Update{Pull: map[string]string{"itemIds": "x"}})
		require.NoError(t, err)
		assert.Equal(t, store.UpdateResult{Matched: 2, Modified: 2}, res)

		for id, want := range map[string][]string{a: {"y"}, b: {}, c: {"y"}} {
			doc, err := st.FindByID(ctx, "players", id)
			require.NoError(t, err)
			assert.ElementsMatch(t, want, doc.Refs("itemIds"))
		}
	})

	t.Run("update rejects invalid field", func(t *testing.T) {
		st := open(t)
		id := mustInsert(t, st, "npcs", store.Document{})
		_, err := st.UpdateOne(context.Background(), "npcs", store.ByID(id), store.Update{Set: map[string]any{"bad field": 1}})
		assert.Error(t, err)
	})

	t.Run("delete one", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id := mustInsert(t, st, "notes", store.Document{"userId": "u1"})

		n, err := st.DeleteOne(ctx, "notes", store.Filter{ID: id, Equals: map[string]string{"userId": "u2"}})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		n, err = st.DeleteOne(ctx, "notes", store.ByID(id))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = st.FindByID(ctx, "notes", id)
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("transaction commits", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id := mustInsert(t, st, "items", store.Document{"name": "Lamp"})
		err := st.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
			_, err := tx.UpdateOne(ctx, "items", store.ByID(id), store.Update{Set: map[string]any{"sceneId": "s1"}})
			return err
		})
		require.NoError(t, err)

		doc, err := st.FindByID(ctx, "items", id)
		require.NoError(t, err)
		assert.Equal(t, "s1", doc.String("sceneId"))
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		id := mustInsert(t, st, "items", store.Document{"name": "Lamp"})
		boom := errors.New("boom")
		err := st.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
			if _, err := tx.UpdateOne(ctx, "items", store.ByID(id), store.Update{Set: map[string]any{"sceneId": "s1"}}); err != nil {
				return err
			}
			if _, err := tx.Insert(ctx, "items", store.Document{"name": "Ghost"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		doc, err := st.FindByID(ctx, "items", id)
		require.NoError(t, err)
		assert.Nil(t, doc["sceneId"])

		docs, err := st.Find(ctx, "items", store.Filter{})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})
}

func mustInsert(t *testing.T, st store.Store, collection string, doc store.Document) string {
	t.Helper()
	id, err := st.Insert(context.Background(), collection, doc)
	require.NoError(t, err)
	return id
}
