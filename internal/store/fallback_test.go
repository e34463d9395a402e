package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("storage exploded")

// flakyStore fails every operation once armed.
type flakyStore struct {
	*Memory
	broken bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.broken {
		return nil, errBroken
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.broken {
		return errBroken
	}
	return f.Memory.Set(ctx, key, value)
}

func TestFallbackPassesThroughWhenHealthy(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{Memory: NewMemory()}
	f := NewFallback(primary)

	require.NoError(t, f.Set(ctx, "k", []byte("v")))
	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.False(t, f.Degraded())
}

func TestFallbackNotFoundDoesNotDegrade(t *testing.T) {
	ctx := context.Background()
	f := NewFallback(&flakyStore{Memory: NewMemory()})

	_, err := f.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, f.Degraded())
}

func TestFallbackDegradesPermanently(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{Memory: NewMemory()}
	f := NewFallback(primary)

	require.NoError(t, f.Set(ctx, "before", []byte("1")))

	primary.broken = true
	require.NoError(t, f.Set(ctx, "after", []byte("2")))
	assert.True(t, f.Degraded())

	// Healing the primary does not un-degrade; writes stay in memory.
	primary.broken = false
	require.NoError(t, f.Set(ctx, "later", []byte("3")))

	got, err := f.Get(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)

	// The write made after degradation never reached the primary.
	_, err = primary.Memory.Get(ctx, "after")
	assert.ErrorIs(t, err, ErrNotFound)
}
