package relation

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/metrics"
	"questlog/internal/store"
	"questlog/internal/store/memory"
)

type world struct {
	st      *memory.Store
	engine  *Engine
	scenes  []string
	npcs    []string
	players []string
	items   []string
}

func newWorld(t *testing.T, n int) *world {
	t.Helper()
	st := memory.New()
	w := &world{st: st, engine: NewEngine(st, nil)}
	for i := 0; i < n; i++ {
		w.scenes = append(w.scenes, insert(t, st, "scenes", store.Document{"name": "scene", "itemIds": []any{}}))
		w.npcs = append(w.npcs, insert(t, st, "npcs", store.Document{"name": "npc", "itemIds": []any{}, "sceneId": nil}))
		w.players = append(w.players, insert(t, st, "players", store.Document{"name": "player", "itemIds": []any{}}))
		w.items = append(w.items, insert(t, st, "items", store.Document{
			"name": "item", "ownerNpcId": nil, "ownerPlayerId": nil, "sceneId": nil,
		}))
	}
	return w
}

func insert(t *testing.T, st store.Store, collection string, doc store.Document) string {
	t.Helper()
	id, err := st.Insert(context.Background(), collection, doc)
	require.NoError(t, err)
	return id
}

func get(t *testing.T, st store.Store, collection, id string) store.Document {
	t.Helper()
	doc, err := st.FindByID(context.Background(), collection, id)
	require.NoError(t, err)
	return doc
}

func snapshot(t *testing.T, st store.Store) map[string][]store.Document {
	t.Helper()
	out := make(map[string][]store.Document)
	for _, c := range []string{"scenes", "npcs", "players", "items"} {
		docs, err := st.Find(context.Background(), c, store.Filter{})
		require.NoError(t, err)
		out[c] = docs
	}
	return out
}

func TestNPCOwnsItem(t *testing.T) {
	w := newWorld(t, 1)
	npc, item := w.npcs[0], w.items[0]

	err := w.engine.Apply(context.Background(), NPCOwnsItem, Params{"npcId": npc, "itemId": item})
	require.NoError(t, err)

	assert.Equal(t, []string{item}, get(t, w.st, "npcs", npc).Refs("itemIds"))
	doc := get(t, w.st, "items", item)
	assert.Equal(t, npc, doc["ownerNpcId"])
	assert.Nil(t, doc["ownerPlayerId"])
	assert.Nil(t, doc["sceneId"])
}

func TestTransferFromSceneToPlayer(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	scene, player, item := w.scenes[0], w.players[0], w.items[0]

	require.NoError(t, w.engine.Apply(ctx, ItemInScene, Params{"sceneId": scene, "itemId": item}))
	assert.Equal(t, []string{item}, get(t, w.st, "scenes", scene).Refs("itemIds"))

	require.NoError(t, w.engine.Apply(ctx, PlayerOwnsItem, Params{"playerId": player, "itemId": item}))

	doc := get(t, w.st, "items", item)
	assert.Equal(t, player, doc["ownerPlayerId"])
	assert.Nil(t, doc["sceneId"])
	assert.Nil(t, doc["ownerNpcId"])
	assert.Equal(t, []string{item}, get(t, w.st, "players", player).Refs("itemIds"))
	assert.Empty(t, get(t, w.st, "scenes", scene).Refs("itemIds"))
}

func TestTransferPrunesPreviousNPC(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 2)
	item := w.items[0]

	require.NoError(t, w.engine.Apply(ctx, NPCOwnsItem, Params{"npcId": w.npcs[0], "itemId": item}))
	require.NoError(t, w.engine.Apply(ctx, NPCOwnsItem, Params{"npcId": w.npcs[1], "itemId": item}))

	assert.Empty(t, get(t, w.st, "npcs", w.npcs[0]).Refs("itemIds"))
	assert.Equal(t, []string{item}, get(t, w.st, "npcs", w.npcs[1]).Refs("itemIds"))
	assert.Equal(t, w.npcs[1], get(t, w.st, "items", item)["ownerNpcId"])
}

func TestNPCInScene(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	npc := w.npcs[0]

	t.Run("missing scene", func(t *testing.T) {
		err := w.engine.Apply(ctx, NPCInScene, Params{"npcId": npc, "sceneId": "6f1c0c9e-7a3e-4c55-9d0f-1f6a1d2b3c4d"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.Nil(t, get(t, w.st, "npcs", npc)["sceneId"])
	})

	t.Run("existing scene", func(t *testing.T) {
		require.NoError(t, w.engine.Apply(ctx, NPCInScene, Params{"npcId": npc, "sceneId": w.scenes[0]}))
		assert.Equal(t, w.scenes[0], get(t, w.st, "npcs", npc)["sceneId"])

		require.NoError(t, w.engine.Apply(ctx, RemoveNPCFromScene, Params{"npcId": npc}))
		assert.Nil(t, get(t, w.st, "npcs", npc)["sceneId"])
	})
}

func TestNPCKilledByPlayer(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)

	require.NoError(t, w.engine.Apply(ctx, NPCKilledByPlayer, Params{"npcId": w.npcs[0], "playerId": w.players[0]}))
	assert.Equal(t, w.players[0], get(t, w.st, "npcs", w.npcs[0])["killedByPlayerId"])

	err := w.engine.Apply(ctx, NPCKilledByPlayer, Params{"npcId": w.npcs[0], "playerId": w.items[0]})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	player, item := w.players[0], w.items[0]

	require.NoError(t, w.engine.Apply(ctx, PlayerOwnsItem, Params{"playerId": player, "itemId": item}))
	require.NoError(t, w.engine.Apply(ctx, RemoveItemFromPlayer, Params{"playerId": player, "itemId": item}))

	assert.Empty(t, get(t, w.st, "players", player).Refs("itemIds"))
	assert.Nil(t, get(t, w.st, "items", item)["ownerPlayerId"])
}

func TestRemoveFromNonHolderChangesNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   Name
		params func(w *world) Params
	}{
		{RemoveItemFromNPC, func(w *world) Params { return Params{"npcId": w.npcs[1]} }},
		{RemoveItemFromPlayer, func(w *world) Params { return Params{"playerId": w.players[0]} }},
		{RemoveItemFromScene, func(w *world) Params { return Params{"sceneId": w.scenes[0]} }},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			w := newWorld(t, 2)
			item := w.items[0]
			require.NoError(t, w.engine.Apply(ctx, NPCOwnsItem, Params{"npcId": w.npcs[0], "itemId": item}))
			before := snapshot(t, w.st)

			params := tt.params(w)
			params["itemId"] = item
			require.NoError(t, w.engine.Apply(ctx, tt.name, params))

			assert.Equal(t, before, snapshot(t, w.st))
			assert.Equal(t, w.npcs[0], get(t, w.st, "items", item)["ownerNpcId"])
			assert.Equal(t, []string{item}, get(t, w.st, "npcs", w.npcs[0]).Refs("itemIds"))
			assertExclusive(t, w)
		})
	}
}

func TestRemoveMissingItem(t *testing.T) {
	w := newWorld(t, 1)
	err := w.engine.Apply(context.Background(), RemoveItemFromNPC, Params{"npcId": w.npcs[0], "itemId": "0b7d8f7e-2d0c-4f0e-8f55-5b8b9ad3c0a1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNPCInSceneLastWriteWins(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 2)
	npc := w.npcs[0]

	require.NoError(t, w.engine.Apply(ctx, NPCInScene, Params{"npcId": npc, "sceneId": w.scenes[0]}))
	require.NoError(t, w.engine.Apply(ctx, NPCInScene, Params{"npcId": npc, "sceneId": w.scenes[1]}))

	assert.Equal(t, w.scenes[1], get(t, w.st, "npcs", npc)["sceneId"])
}

func TestTransferFromPlayerToNPC(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	player, npc, item := w.players[0], w.npcs[0], w.items[0]

	require.NoError(t, w.engine.Apply(ctx, PlayerOwnsItem, Params{"playerId": player, "itemId": item}))
	require.NoError(t, w.engine.Apply(ctx, NPCOwnsItem, Params{"npcId": npc, "itemId": item}))

	doc := get(t, w.st, "items", item)
	assert.Equal(t, npc, doc["ownerNpcId"])
	assert.Nil(t, doc["ownerPlayerId"])
	assert.Nil(t, doc["sceneId"])
	assert.Empty(t, get(t, w.st, "players", player).Refs("itemIds"))
	assert.Equal(t, []string{item}, get(t, w.st, "npcs", npc).Refs("itemIds"))
}

func TestApplyTxJoinsCallerTransaction(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	before := snapshot(t, w.st)

	err := w.st.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		if err := w.engine.ApplyTx(ctx, tx, NPCOwnsItem, Params{"npcId": w.npcs[0], "itemId": w.items[0]}); err != nil {
			return err
		}
		return errInjected
	})
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, before, snapshot(t, w.st))

	err = w.st.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		return w.engine.ApplyTx(ctx, tx, NPCOwnsItem, Params{"npcId": w.npcs[0], "itemId": w.items[0]})
	})
	require.NoError(t, err)
	assert.Equal(t, w.npcs[0], get(t, w.st, "items", w.items[0])["ownerNpcId"])

	err = w.st.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		return w.engine.ApplyTx(ctx, tx, Name("npc_marries_item"), Params{})
	})
	assert.ErrorIs(t, err, ErrUnknownRelationship)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()

	for _, name := range []Name{NPCOwnsItem, PlayerOwnsItem, ItemInScene, NPCInScene} {
		t.Run(string(name), func(t *testing.T) {
			w := newWorld(t, 1)
			params := Params{"npcId": w.npcs[0], "playerId": w.players[0], "sceneId": w.scenes[0], "itemId": w.items[0]}

			require.NoError(t, w.engine.Apply(ctx, name, params))
			once := snapshot(t, w.st)
			require.NoError(t, w.engine.Apply(ctx, name, params))
			assert.Equal(t, once, snapshot(t, w.st))
		})
	}
}

func TestUnknownRelationshipTouchesNothing(t *testing.T) {
	w := newWorld(t, 1)
	counting := &countingStore{Store: w.st}
	engine := NewEngine(counting, nil)

	before := testutil.ToFloat64(metrics.RelationshipApplications.WithLabelValues("unknown", metrics.OutcomeUnknown))

	err := engine.Apply(context.Background(), Name("npc_marries_item"), Params{"npcId": w.npcs[0], "itemId": w.items[0]})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRelationship))
	assert.Zero(t, counting.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RelationshipApplications.WithLabelValues("unknown", metrics.OutcomeUnknown)))
}

func TestInvalidParams(t *testing.T) {
	w := newWorld(t, 1)
	counting := &countingStore{Store: w.st}
	engine := NewEngine(counting, nil)

	tests := []struct {
		name   string
		params Params
	}{
		{name: "missing item", params: Params{"npcId": w.npcs[0]}},
		{name: "empty npc", params: Params{"npcId": "", "itemId": w.items[0]}},
		{name: "malformed npc", params: Params{"npcId": "grib", "itemId": w.items[0]}},
		{name: "nil params", params: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Apply(context.Background(), NPCOwnsItem, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParam))
			assert.Zero(t, counting.calls)
		})
	}
}

func TestFailedStepRollsBack(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	scene, item := w.scenes[0], w.items[0]
	require.NoError(t, w.engine.Apply(ctx, ItemInScene, Params{"sceneId": scene, "itemId": item}))
	before := snapshot(t, w.st)

	t.Run("missing holder", func(t *testing.T) {
		err := w.engine.Apply(ctx, NPCOwnsItem, Params{"npcId": "0b7d8f7e-2d0c-4f0e-8f55-5b8b9ad3c0a1", "itemId": item})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, before, snapshot(t, w.st))
	})

	t.Run("missing item", func(t *testing.T) {
		err := w.engine.Apply(ctx, PlayerOwnsItem, Params{"playerId": w.players[0], "itemId": "0b7d8f7e-2d0c-4f0e-8f55-5b8b9ad3c0a1"})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, before, snapshot(t, w.st))
	})

	t.Run("store failure", func(t *testing.T) {
		failing := &countingStore{Store: w.st, failOn: "items"}
		err := NewEngine(failing, nil).Apply(ctx, PlayerOwnsItem, Params{"playerId": w.players[0], "itemId": item})
		require.ErrorIs(t, err, errInjected)
		assert.Equal(t, before, snapshot(t, w.st))
	})
}

// TestOwnershipExclusivity applies random transfers and removals, some of
// them naming a holder that does not hold the item, and checks after every
// step that each item has at most one owner and that exactly the named
// holder lists it.
func TestOwnershipExclusivity(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	rng := rand.New(rand.NewPCG(7, 42))

	pick := func(ids []string) string { return ids[rng.IntN(len(ids))] }

	for i := 0; i < 300; i++ {
		item := pick(w.items)
		var name Name
		params := Params{"itemId": item}

		switch rng.IntN(5) {
		case 0:
			name, params["npcId"] = NPCOwnsItem, pick(w.npcs)
		case 1:
			name, params["playerId"] = PlayerOwnsItem, pick(w.players)
		case 2:
			name, params["sceneId"] = ItemInScene, pick(w.scenes)
		case 3:
			switch rng.IntN(3) {
			case 0:
				name, params["npcId"] = RemoveItemFromNPC, pick(w.npcs)
			case 1:
				name, params["playerId"] = RemoveItemFromPlayer, pick(w.players)
			default:
				name, params["sceneId"] = RemoveItemFromScene, pick(w.scenes)
			}
		default:
			doc := get(t, w.st, "items", item)
			switch {
			case doc.String("ownerNpcId") != "":
				name, params["npcId"] = RemoveItemFromNPC, doc.String("ownerNpcId")
			case doc.String("ownerPlayerId") != "":
				name, params["playerId"] = RemoveItemFromPlayer, doc.String("ownerPlayerId")
			case doc.String("sceneId") != "":
				name, params["sceneId"] = RemoveItemFromScene, doc.String("sceneId")
			default:
				continue
			}
		}

		require.NoError(t, w.engine.Apply(ctx, name, params), "step %d %s", i, name)
		assertExclusive(t, w)
	}
}

func assertExclusive(t *testing.T, w *world) {
	t.Helper()
	state := snapshot(t, w.st)

	holders := make(map[string][]string)
	for _, c := range []string{"scenes", "npcs", "players"} {
		for _, doc := range state[c] {
			for _, ref := range doc.Refs("itemIds") {
				holders[ref] = append(holders[ref], doc.ID())
			}
		}
	}

	for _, item := range state["items"] {
		var owners []string
		for _, f := range []string{"ownerNpcId", "ownerPlayerId", "sceneId"} {
			if v := item.String(f); v != "" {
				owners = append(owners, v)
			}
		}
		require.LessOrEqual(t, len(owners), 1, "item %s has owners %v", item.ID(), owners)
		if len(owners) == 0 {
			require.Empty(t, holders[item.ID()], "unowned item %s is held", item.ID())
			continue
		}
		require.Equal(t, owners, holders[item.ID()], "item %s holders", item.ID())
	}
}

func TestTable(t *testing.T) {
	for _, name := range Names() {
		steps, ok := Lookup(name)
		require.True(t, ok)
		require.NotEmpty(t, steps, name)
		require.NotEmpty(t, RequiredParams(name), name)
	}

	assert.Equal(t, []string{"itemId", "npcId"}, RequiredParams(NPCOwnsItem))
	assert.Equal(t, []string{"npcId"}, RequiredParams(RemoveNPCFromScene))
	assert.Equal(t, []string{"sceneId", "npcId"}, RequiredParams(NPCInScene))

	_, ok := Lookup("npc_marries_item")
	assert.False(t, ok)

	assert.Equal(t, "npcId", Step{Collection: "npcs"}.IDParam())
	assert.Equal(t, "itemId", Step{Field: "itemIds"}.ValueParam())
}

var errInjected = errors.New("injected failure")

// countingStore records every store call and can fail updates on one collection.
type countingStore struct {
	store.Store
	calls  int
	failOn string
}

func (c *countingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Collections) error) error {
	c.calls++
	return c.Store.WithTx(ctx, func(ctx context.Context, tx store.Collections) error {
		return fn(ctx, &countingCollections{Collections: tx, parent: c})
	})
}

func (c *countingStore) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	c.calls++
	return c.Store.Insert(ctx, collection, doc)
}

func (c *countingStore) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	c.calls++
	return c.Store.FindByID(ctx, collection, id)
}

func (c *countingStore) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	c.calls++
	return c.Store.Find(ctx, collection, filter)
}

func (c *countingStore) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	c.calls++
	return c.Store.UpdateOne(ctx, collection, filter, update)
}

func (c *countingStore) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	c.calls++
	return c.Store.UpdateMany(ctx, collection, filter, update)
}

func (c *countingStore) DeleteOne(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	c.calls++
	return c.Store.DeleteOne(ctx, collection, filter)
}

type countingCollections struct {
	store.Collections
	parent *countingStore
}

func (c *countingCollections) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	c.parent.calls++
	return c.Collections.FindByID(ctx, collection, id)
}

func (c *countingCollections) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	c.parent.calls++
	if collection == c.parent.failOn {
		return store.UpdateResult{}, errInjected
	}
	return c.Collections.UpdateOne(ctx, collection, filter, update)
}

func (c *countingCollections) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	c.parent.calls++
	if collection == c.parent.failOn {
		return store.UpdateResult{}, errInjected
	}
	return c.Collections.UpdateMany(ctx, collection, filter, update)
}
