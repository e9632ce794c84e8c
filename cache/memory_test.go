package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "u1", PhaseSelection, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "u1", PhaseSelection, "fp1", []byte("v1")))

	payload, ok, err := store.Get(ctx, "u1", PhaseSelection, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), payload)

	// A stale fingerprint never hits.
	_, ok, err = store.Get(ctx, "u1", PhaseSelection, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	require.NoError(t, store.Clear(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
	assert.NoError(t, store.Close())
}
