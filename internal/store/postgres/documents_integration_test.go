//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"questlog/internal/store"
	"questlog/internal/store/storetest"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("QUESTLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUESTLOG_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	client, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(ctx) })

	require.NoError(t, client.EnsureSchema(ctx))
	_, err = client.pool.Exec(ctx, "TRUNCATE documents")
	require.NoError(t, err)
	return client
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return testClient(t) })
}
