package checkpoint_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/polypnl/internal/adapters/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "2791bca1f2de4661ed88a30c99a7a9449aa84174"

func TestSQLiteStore_PutAndGet(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.Put(ctx, "ingest:clob", wallet, "offset=500")
	require.NoError(t, err)

	cursor, err := store.Get(ctx, "ingest:clob", wallet)
	require.NoError(t, err)
	assert.Equal(t, "offset=500", cursor)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// Sin cursor guardado → "" sin error, la ingesta empieza desde cero
	cursor, err := store.Get(context.Background(), "ingest:onchain", wallet)
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ingest:onchain", wallet, "block=1000"))
	require.NoError(t, store.Put(ctx, "ingest:onchain", wallet, "block=2000"))

	cursor, err := store.Get(ctx, "ingest:onchain", wallet)
	require.NoError(t, err)
	assert.Equal(t, "block=2000", cursor)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ingest:subgraph", wallet, "id=0xabc"))
	require.NoError(t, store.Delete(ctx, "ingest:subgraph", wallet))

	cursor, err := store.Get(ctx, "ingest:subgraph", wallet)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	// Borrar un checkpoint inexistente no es error
	assert.NoError(t, store.Delete(ctx, "ingest:subgraph", wallet))
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	other := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	// Mismo job, distinta key
	require.NoError(t, store.Put(ctx, "ingest:clob", wallet, "offset=100"))
	require.NoError(t, store.Put(ctx, "ingest:clob", other, "offset=900"))
	// Misma key, distinto job
	require.NoError(t, store.Put(ctx, "ingest:onchain", wallet, "block=5000"))

	got, err := store.Get(ctx, "ingest:clob", wallet)
	require.NoError(t, err)
	assert.Equal(t, "offset=100", got)

	got, err = store.Get(ctx, "ingest:clob", other)
	require.NoError(t, err)
	assert.Equal(t, "offset=900", got)

	got, err = store.Get(ctx, "ingest:onchain", wallet)
	require.NoError(t, err)
	assert.Equal(t, "block=5000", got)
}
