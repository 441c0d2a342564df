// Package cache stores external-inference judgments keyed by content hash
// so unchanged task pairs never trigger repeat reasoning calls. Two backends
// exist: an in-process map for single-run use and an SQLite file that
// survives restarts.
package cache

import (
	"fmt"
	"time"
)

// Store is a TTL key-value store for serialized judgments.
type Store interface {
	// Get returns the stored value and whether a live entry exists.
	Get(key string) ([]byte, bool, error)
	// Set stores a value. A ttl of zero means the entry never expires.
	Set(key string, value []byte, ttl time.Duration) error
	// Delete removes an entry if present.
	Delete(key string) error
	// Purge removes expired entries and returns how many were dropped.
	Purge() (int64, error)
	Close() error
}

// Open constructs a store for the configured backend. An empty backend
// selects the in-memory store.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown cache backend %q", backend)
}
