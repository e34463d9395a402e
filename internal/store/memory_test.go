package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "a", []byte("one")))
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, m.Set(ctx, "a", []byte("two")))
	got, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	require.NoError(t, m.Delete(ctx, "a"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, m.Delete(ctx, "a"))
}

func TestMemoryKeysPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "bin:2", []byte("b")))
	require.NoError(t, m.Set(ctx, "bin:1", []byte("a")))
	require.NoError(t, m.Set(ctx, "alert:1", []byte("c")))

	keys, err := m.Keys(ctx, "bin:")
	require.NoError(t, err)
	assert.Equal(t, []string{"bin:1", "bin:2"}, keys)

	keys, err = m.Keys(ctx, "nothing:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	original := []byte("value")
	require.NoError(t, m.Set(ctx, "k", original))
	original[0] = 'X'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	// Mutating the returned slice must not leak back into the store.
	got[0] = 'Y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}
