package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// Fallback wraps a primary Store and permanently degrades to an in-memory
// store after the first storage failure. Degraded data is lost on restart;
// keeping the process alive beats crashing mid-shift when the database blips.
type Fallback struct {
	primary  Store
	memory   *Memory
	degraded atomic.Bool
	once     sync.Once
}

func NewFallback(primary Store) *Fallback {
	return &Fallback{primary: primary, memory: NewMemory()}
}

// Degraded reports whether the wrapper has switched to the in-memory store.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) degrade(err error) {
	f.degraded.Store(true)
	f.once.Do(func() {
		log.Printf("⚠️  [STORE] Storage failure, degrading to in-memory fallback (data will not survive restart): %v", err)
	})
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	if f.degraded.Load() {
		return f.memory.Get(ctx, key)
	}
	value, err := f.primary.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		f.degrade(err)
		return f.memory.Get(ctx, key)
	}
	return value, err
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte) error {
	if f.degraded.Load() {
		return f.memory.Set(ctx, key, value)
	}
	if err := f.primary.Set(ctx, key, value); err != nil {
		f.degrade(err)
		return f.memory.Set(ctx, key, value)
	}
	return nil
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	if f.degraded.Load() {
		return f.memory.Delete(ctx, key)
	}
	if err := f.primary.Delete(ctx, key); err != nil {
		f.degrade(err)
		return f.memory.Delete(ctx, key)
	}
	return nil
}

func (f *Fallback) Keys(ctx context.Context, prefix string) ([]string, error) {
	if f.degraded.Load() {
		return f.memory.Keys(ctx, prefix)
	}
	keys, err := f.primary.Keys(ctx, prefix)
	if err != nil {
		f.degrade(err)
		return f.memory.Keys(ctx, prefix)
	}
	return keys, nil
}

func (f *Fallback) Close() error { return f.primary.Close() }

var _ Store = (*Fallback)(nil)
