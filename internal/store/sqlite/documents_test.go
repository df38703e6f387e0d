package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"questlog/internal/store"
	"questlog/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		client, err := New(ctx, "sqlite://"+filepath.Join(t.TempDir(), "questlog.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close(ctx) })
		require.NoError(t, client.EnsureSchema(ctx))
		return client
	})
}

func TestInMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	client, err := New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer client.Close(ctx)

	require.NoError(t, client.EnsureSchema(ctx))
	require.NoError(t, client.EnsureSchema(ctx))

	id, err := client.Insert(ctx, "games", store.Document{"name": "Ashfall"})
	require.NoError(t, err)

	doc, err := client.FindByID(ctx, "games", id)
	require.NoError(t, err)
	require.Equal(t, "Ashfall", doc.String("name"))
}
