package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
// Drivers may additionally implement SortedLister and IndexManager.
type Store interface {
	Pinger
	HashStore
	Transactor
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
// HGetAll returns an empty map (not an error) for missing keys.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// SortedLister returns hashes under a prefix ordered by a numeric field.
type SortedLister interface {
	ListSorted(ctx context.Context, q *SortedQuery) (*SearchResult, error)
}

// IndexManager provides secondary index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}
