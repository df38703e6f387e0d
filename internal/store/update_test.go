package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	t.Run("set normalizes values", func(t *testing.T) {
		doc := Document{}
		changed, err := Apply(doc, Update{Set: map[string]any{"itemIds": []string{"a"}, "xp": 10}})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []any{"a"}, doc["itemIds"])
		assert.Equal(t, float64(10), doc["xp"])
	})

	t.Run("set same value is not a change", func(t *testing.T) {
		doc := Document{"sceneId": nil}
		changed, err := Apply(doc, Update{Set: map[string]any{"sceneId": nil}})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("dotted set creates nested objects", func(t *testing.T) {
		doc := Document{"notes": map[string]any{"summary": "old", "loot": "gold"}}
		_, err := Apply(doc, Update{Set: map[string]any{"notes.summary": "new", "meta.source.kind": "api"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"summary": "new", "loot": "gold"}, doc["notes"])
		assert.Equal(t, map[string]any{"source": map[string]any{"kind": "api"}}, doc["meta"])
	})

	t.Run("dotted set through scalar fails", func(t *testing.T) {
		doc := Document{"notes": "flat"}
		_, err := Apply(doc, Update{Set: map[string]any{"notes.summary": "x"}})
		assert.Error(t, err)
	})

	t.Run("add to set is idempotent", func(t *testing.T) {
		doc := Document{"itemIds": []any{"a"}}
		changed, err := Apply(doc, Update{AddToSet: map[string]string{"itemIds": "a"}})
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = Apply(doc, Update{AddToSet: map[string]string{"itemIds": "b"}})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"a", "b"}, doc.Refs("itemIds"))
	})

	t.Run("add to missing set creates it", func(t *testing.T) {
		doc := Document{}
		_, err := Apply(doc, Update{AddToSet: map[string]string{"itemIds": "a"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, doc.Refs("itemIds"))
	})

	t.Run("add to scalar fails", func(t *testing.T) {
		doc := Document{"itemIds": "a"}
		_, err := Apply(doc, Update{AddToSet: map[string]string{"itemIds": "b"}})
		assert.Error(t, err)
	})

	t.Run("pull removes every occurrence", func(t *testing.T) {
		doc := Document{"itemIds": []any{"a", "b", "a"}}
		changed, err := Apply(doc, Update{Pull: map[string]string{"itemIds": "a"}})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"b"}, doc.Refs("itemIds"))

		changed, err = Apply(doc, Update{Pull: map[string]string{"itemIds": "zzz"}})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("pull from missing field is a no-op", func(t *testing.T) {
		doc := Document{}
		changed, err := Apply(doc, Update{Pull: map[string]string{"itemIds": "a"}})
		require.NoError(t, err)
		assert.False(t, changed)
		_, present := doc["itemIds"]
		assert.False(t, present)
	})
}

func TestMatches(t *testing.T) {
	doc := Document{
		IDField:   "id-1",
		"gameId":  "g1",
		"isEnded": true,
		"itemIds": []any{"a", "b"},
		"notes":   map[string]any{"summary": "ambush"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, want: true},
		{name: "id match", filter: ByID("id-1"), want: true},
		{name: "id mismatch", filter: ByID("id-2"), want: false},
		{name: "equals", filter: Where("gameId", "g1"), want: true},
		{name: "equals mismatch", filter: Where("gameId", "g2"), want: false},
		{name: "equals missing field", filter: Where("ownerId", "g1"), want: false},
		{name: "equals non-string", filter: Where("isEnded", "true"), want: false},
		{name: "equals nested", filter: Where("notes.summary", "ambush"), want: true},
		{name: "contains", filter: Holding("itemIds", "b"), want: true},
		{name: "contains missing member", filter: Holding("itemIds", "c"), want: false},
		{name: "contains on scalar", filter: Holding("gameId", "g1"), want: false},
		{name: "combined", filter: Filter{ID: "id-1", Equals: map[string]string{"gameId": "g1"}, Contains: map[string]string{"itemIds": "a"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(doc, tt.filter))
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Update{Set: map[string]any{"notes.summary": "x"}}.Validate())
	assert.Error(t, Update{Set: map[string]any{IDField: "x"}}.Validate())
	assert.Error(t, Update{Pull: map[string]string{"item ids": "x"}}.Validate())
	assert.Error(t, Filter{Equals: map[string]string{"a'); DROP": "x"}}.Validate())
	assert.Error(t, Filter{Contains: map[string]string{"": "x"}}.Validate())
}
