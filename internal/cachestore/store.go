// Package cachestore persists the expensive-to-build reference indices so
// that the geometry dataset is parsed only when a blob is missing.
package cachestore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a blob is absent from the store.
	ErrNotFound = errors.New("cache blob not found")
	// ErrCorrupted is returned when a stored blob cannot be decoded.
	ErrCorrupted = errors.New("cache blob is corrupted")
)

// Store is a durable key/value store of named blobs.
type Store interface {
	// Get returns the blob stored under name or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the blob stored under name.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	Close() error
}
