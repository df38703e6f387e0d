package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/config"
	"questlog/internal/ingest"
	"questlog/internal/relation"
	"questlog/internal/store/memory"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    relation.Params
		wantErr bool
	}{
		{"empty", nil, relation.Params{}, false},
		{"pairs", []string{"npcId=a", "itemId=b"}, relation.Params{"npcId": "a", "itemId": "b"}, false},
		{"value with equals", []string{"npcId=a=b"}, relation.Params{"npcId": "a=b"}, false},
		{"missing equals", []string{"npcId"}, nil, true},
		{"empty key", []string{"=a"}, nil, true},
		{"duplicate", []string{"npcId=a", "npcId=b"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenDB(t *testing.T) {
	ctx := context.Background()

	db, err := openDB(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, db)

	db, err = openDB(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.Close(ctx))

	_, err = openDB(ctx, "mongodb://localhost")
	assert.Error(t, err)
	_, err = openDB(ctx, "questlog.db")
	assert.Error(t, err)
}

func TestRunInit(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, runInit("memory://", true))

	cfg, err := config.Load("questlog.yaml")
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Database.DSN)
	assert.Equal(t, "schema.yaml", cfg.Schema.Path)

	schema, err := config.LoadSchema(cfg.Schema.Path)
	require.NoError(t, err)
	assert.True(t, schema.IsValidEntityType("npc"))

	assert.Error(t, runInit("memory://", false), "existing config is not overwritten")

	_, err = os.Stat("schema.yaml")
	assert.NoError(t, err)
}

func TestRelationshipNames(t *testing.T) {
	names := relationshipNames()
	assert.Len(t, names, len(relation.Names()))
	assert.Contains(t, names, "npc_owns_item(itemId, npcId)")
}

func TestPrintImport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printImport(&out, &ingest.Result{Created: 2, LinksApplied: 1}))
	assert.Contains(t, out.String(), "Created:       2")
	assert.NotContains(t, out.String(), "Errors")

	out.Reset()
	err := printImport(&out, &ingest.Result{Errors: []error{errors.New("npcs/a.md: unresolved scene")}})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Errors (1):")
	assert.Contains(t, out.String(), "unresolved scene")
}
