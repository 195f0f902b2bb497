// Package checkpoint provides pluggable key-value storage used to
// checkpoint collaboration state across process restarts. Failures here
// are non-fatal to the engine: it logs and continues with in-memory state.
package checkpoint

import "context"

// Store is the persistence contract the engine depends on. Get returns
// (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}
