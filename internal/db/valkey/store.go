// Package valkey is the Valkey driver. Hash storage and WATCH/MULTI
// transactions are shared with the Redis driver; valkey-search cannot
// SORTBY, so sorted listing is done client-side over SCAN + HGETALL.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/coursedex/internal/db"
	dbredis "github.com/kailas-cloud/coursedex/internal/db/redis"
)

// Config holds Valkey connection settings.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store implements db.Store and db.SortedLister. It deliberately does not
// implement db.IndexManager: callers skip index creation and go straight to
// ListSorted.
type Store struct {
	db.Store
}

// NewStore creates a Valkey-backed store.
func NewStore(cfg Config) (*Store, error) {
	rs, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey: %w", err)
	}
	return &Store{Store: rs}, nil
}

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{Store: dbredis.NewStoreForTest(c)}
}

// ListSorted scans q.Prefix and orders the hashes by the numeric field
// q.SortBy. Non-numeric values sort as zero; ties break on key.
func (s *Store) ListSorted(ctx context.Context, q *db.SortedQuery) (*db.SearchResult, error) {
	if q.SortBy == "" {
		return nil, errors.New("sort field is required")
	}
	if q.Limit <= 0 {
		return &db.SearchResult{}, nil
	}

	keys, err := s.Scan(ctx, q.Prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan for sorted list: %w", err)
	}
	if len(keys) == 0 {
		return &db.SearchResult{}, nil
	}

	hashes, err := s.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch for sorted list: %w", err)
	}

	type row struct {
		entry db.SearchEntry
		n     int64
	}
	rows := make([]row, 0, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		n, _ := strconv.ParseInt(m[q.SortBy], 10, 64)
		rows = append(rows, row{entry: db.SearchEntry{Key: keys[i], Fields: project(m, q.ReturnFields)}, n: n})
	}

	slices.SortFunc(rows, func(a, b row) int {
		if a.n != b.n {
			if (a.n > b.n) == q.Descending {
				return -1
			}
			return 1
		}
		return strings.Compare(a.entry.Key, b.entry.Key)
	})

	total := len(rows)
	lo := min(max(q.Offset, 0), total)
	hi := min(lo+q.Limit, total)
	entries := make([]db.SearchEntry, 0, hi-lo)
	for _, r := range rows[lo:hi] {
		entries = append(entries, r.entry)
	}
	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func project(m map[string]string, fields []string) map[string]string {
	if len(fields) == 0 {
		return m
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}
