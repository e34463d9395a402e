// Package store provides the opaque key-value persistence layer. The engine
// treats storage as get/set with last-write-wins semantics; anything smarter
// (locking, transactions) lives above it in the repository.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence contract. All domain entities are stored as JSON
// blobs under prefixed keys (bin:, collection:, alert:, history:).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
