package validate

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/config"
	"questlog/internal/metrics"
	"questlog/internal/store"
	"questlog/internal/store/memory"
)

const game = "game-1"

func seed(t *testing.T, st store.Store, collection string, doc store.Document) {
	t.Helper()
	doc["gameId"] = game
	_, err := st.Insert(context.Background(), collection, doc)
	require.NoError(t, err)
}

func hasIssue(issues []Issue, code, entityID string) bool {
	for _, issue := range issues {
		if issue.Code == code && issue.EntityID == entityID {
			return true
		}
	}
	return false
}

func TestRun_Consistent(t *testing.T) {
	st := memory.New()
	seed(t, st, "npcs", store.Document{"_id": "npc-1", "itemIds": []any{"item-1"}, "sceneId": "scene-1"})
	seed(t, st, "scenes", store.Document{"_id": "scene-1", "itemIds": []any{"item-2"}})
	seed(t, st, "items", store.Document{"_id": "item-1", "ownerNpcId": "npc-1", "ownerPlayerId": nil, "sceneId": nil})
	seed(t, st, "items", store.Document{"_id": "item-2", "sceneId": "scene-1"})

	report, err := Run(context.Background(), config.DefaultSchema(), st, game)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.False(t, report.HasErrors())
}

func TestRun_Issues(t *testing.T) {
	st := memory.New()
	// item-1 is claimed by both a player and an npc, but only the npc lists it.
	seed(t, st, "npcs", store.Document{"_id": "npc-1", "itemIds": []any{"item-1", "item-gone"}})
	seed(t, st, "players", store.Document{"_id": "player-1", "itemIds": []any{"item-2"}})
	seed(t, st, "items", store.Document{"_id": "item-1", "ownerNpcId": "npc-1", "ownerPlayerId": "player-1"})
	// item-2 moved to a scene without leaving player-1.
	seed(t, st, "scenes", store.Document{"_id": "scene-1", "itemIds": []any{"item-2"}})
	seed(t, st, "items", store.Document{"_id": "item-2", "sceneId": "scene-1"})
	seed(t, st, "npcs", store.Document{"_id": "npc-2", "itemIds": []any{}, "sceneId": "scene-deleted"})

	report, err := Run(context.Background(), config.DefaultSchema(), st, game)
	require.NoError(t, err)
	assert.True(t, report.HasErrors())

	tests := []struct {
		code     string
		entityID string
	}{
		{CodeMultipleOwners, "item-1"},
		{CodeMissingBackref, "item-1"},
		{CodeStaleHolder, "player-1"},
		{CodeDanglingReference, "npc-1"},
		{CodeDanglingReference, "npc-2"},
	}
	for _, tt := range tests {
		assert.True(t, hasIssue(report.Issues, tt.code, tt.entityID), "%s on %s", tt.code, tt.entityID)
	}
	assert.Len(t, report.Issues, len(tests))

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.IntegrityIssues.WithLabelValues(CodeDanglingReference)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.IntegrityIssues.WithLabelValues(CodeStaleHolder)))
}

func TestRun_ScopedToGame(t *testing.T) {
	st := memory.New()
	_, err := st.Insert(context.Background(), "npcs", store.Document{
		"_id": "npc-x", "gameId": "other", "itemIds": []any{"missing"},
	})
	require.NoError(t, err)

	report, err := Run(context.Background(), config.DefaultSchema(), st, game)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestRun_RequiresInputs(t *testing.T) {
	_, err := Run(context.Background(), nil, memory.New(), game)
	assert.Error(t, err)
	_, err = Run(context.Background(), config.DefaultSchema(), nil, game)
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	schema := config.DefaultSchema()
	st := memory.New()
	seed(t, st, "players", store.Document{"_id": "player-1", "itemIds": []any{"item-1", "item-gone"}})
	seed(t, st, "scenes", store.Document{"_id": "scene-1", "itemIds": []any{"item-1"}})
	seed(t, st, "items", store.Document{"_id": "item-1", "sceneId": "scene-1"})
	seed(t, st, "npcs", store.Document{"_id": "npc-1", "itemIds": []any{}, "sceneId": "scene-gone", "killedByPlayerId": "player-1"})

	modified, err := Cleanup(ctx, schema, st, game)
	require.NoError(t, err)
	assert.Equal(t, int64(3), modified)

	player, err := st.FindByID(ctx, "players", "player-1")
	require.NoError(t, err)
	assert.Empty(t, player.Refs("itemIds"))

	npc, err := st.FindByID(ctx, "npcs", "npc-1")
	require.NoError(t, err)
	assert.Nil(t, npc["sceneId"])
	assert.Equal(t, "player-1", npc.String("killedByPlayerId"))

	report, err := Run(ctx, schema, st, game)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestCleanup_LeavesOwnershipConflicts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed(t, st, "npcs", store.Document{"_id": "npc-1", "itemIds": []any{"item-1"}})
	seed(t, st, "players", store.Document{"_id": "player-1", "itemIds": []any{"item-1"}})
	seed(t, st, "items", store.Document{"_id": "item-1", "ownerNpcId": "npc-1", "ownerPlayerId": "player-1"})

	modified, err := Cleanup(ctx, config.DefaultSchema(), st, game)
	require.NoError(t, err)
	assert.Zero(t, modified)

	report, err := Run(ctx, config.DefaultSchema(), st, game)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(CodeMultipleOwners))
}
