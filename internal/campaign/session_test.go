package campaign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	gameID, err := svc.CreateGame(ctx, alice, "Waterdeep", "")
	require.NoError(t, err)

	_, _, err = svc.SaveSession(ctx, alice, SaveSessionInput{GameID: gameID, Title: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.SaveSession(ctx, bob, SaveSessionInput{GameID: gameID, Title: "Intrusion"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.SaveSession(ctx, alice, SaveSessionInput{GameID: gameID, Title: "Bad", Notes: map[string]any{"bad.key": "x"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	first, created, err := svc.SaveSession(ctx, alice, SaveSessionInput{
		GameID: gameID,
		Title:  "Session 1",
		Notes:  map[string]any{"summary": "Met Volo", "custom": "Old note"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	session, err := svc.GetSession(ctx, alice, first)
	require.NoError(t, err)
	assert.Equal(t, "Met Volo", session.Notes["summary"])
	assert.Equal(t, "", session.Notes["loot"])
	assert.Equal(t, []any{"Old note"}, session.Notes["custom"])
	assert.False(t, session.IsEnded)

	t.Run("append custom note", func(t *testing.T) {
		require.NoError(t, svc.AppendSessionNote(ctx, alice, first, "Bought a tavern"))
		session, err := svc.GetSession(ctx, alice, first)
		require.NoError(t, err)
		assert.Equal(t, []any{"Old note", "Bought a tavern"}, session.Notes["custom"])

		assert.ErrorIs(t, svc.AppendSessionNote(ctx, alice, first, " "), ErrInvalidInput)
		assert.ErrorIs(t, svc.AppendSessionNote(ctx, bob, first, "hi"), ErrNotFound)
	})

	t.Run("patch merges notes", func(t *testing.T) {
		ended := true
		require.NoError(t, svc.PatchSession(ctx, alice, first, SessionPatch{
			IsEnded: &ended,
			Notes:   map[string]any{"loot": "Gold dragon statuette"},
		}))
		session, err := svc.GetSession(ctx, alice, first)
		require.NoError(t, err)
		assert.True(t, session.IsEnded)
		assert.Equal(t, "Gold dragon statuette", session.Notes["loot"])
		assert.Equal(t, "Met Volo", session.Notes["summary"])

		assert.ErrorIs(t, svc.PatchSession(ctx, alice, first, SessionPatch{}), ErrInvalidInput)
		assert.ErrorIs(t, svc.PatchSession(ctx, bob, first, SessionPatch{IsEnded: &ended}), ErrNotFound)
	})

	t.Run("save replaces an existing session", func(t *testing.T) {
		id, created, err := svc.SaveSession(ctx, alice, SaveSessionInput{SessionID: first, GameID: gameID, Title: "Session 1: Trollskull"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, id)

		session, err := svc.GetSession(ctx, alice, first)
		require.NoError(t, err)
		assert.Equal(t, "Session 1: Trollskull", session.Title)

		_, _, err = svc.SaveSession(ctx, alice, SaveSessionInput{SessionID: "missing", GameID: gameID, Title: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	second, _, err := svc.SaveSession(ctx, alice, SaveSessionInput{
		GameID:      gameID,
		Title:       "Session 2",
		Connections: SessionConnections{NPCs: []string{"npc-1"}},
	})
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, alice, gameID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)
	assert.Equal(t, []string{"npc-1"}, sessions[1].Connections.NPCs)

	sessions, err = svc.ListSessions(ctx, bob, gameID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = svc.GetSession(ctx, bob, first)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, bob, first), ErrNotFound)
	require.NoError(t, svc.DeleteSession(ctx, alice, first))
	_, err = svc.GetSession(ctx, alice, first)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomList(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"nil", nil, []any{}},
		{"empty string", "", []any{}},
		{"string", "one", []any{"one"}},
		{"list", []any{"a", "b"}, []any{"a", "b"}},
		{"string slice", []string{"a"}, []any{"a"}},
		{"number", 3, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, customList(tt.in))
		})
	}
}
