// Package store is the I/O boundary to the durable key-value service that
// holds the router configuration. Backends carry no business logic: they
// get, put and list opaque byte values.
package store

import (
	"context"
	"sort"
)

// Logical keys of the storage layout
const (
	KeyRoutes   = "routes"
	KeyFlags    = "flags"
	KeyMetadata = "metadata"
	AuditPrefix = "audit:"
)

// Store is a generic durable key-value service
type Store interface {
	// Get returns the value at key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases the underlying connection.
	Close() error
}

func sortedKeys(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	sort.Strings(keys)
	return keys
}
