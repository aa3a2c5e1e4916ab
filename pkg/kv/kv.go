// Package kv provides the key-value store behind sessions and OAuth state.
// Backends (Valkey/Redis, in-memory) are interchangeable so the session
// manager and identity resolver never depend on a concrete client.
package kv

import (
	"context"
	"time"
)

// Store defines a minimal key-value interface for session storage.
// Keys are strings, values are byte slices. All writes take a TTL.
type Store interface {
	// Set stores a value with the given key and TTL.
	// If TTL is 0, the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key. Returns ErrNotFound if key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Take atomically reads and deletes a key. Returns ErrNotFound if the
	// key doesn't exist, so only one caller can ever consume a value.
	Take(ctx context.Context, key string) ([]byte, error)

	// Touch resets the TTL of an existing key. Returns ErrNotFound if the
	// key doesn't exist.
	Touch(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes a key. Returns nil if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Close closes the connection to the store.
	Close() error
}
