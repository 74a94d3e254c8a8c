// Package memory is an in-process db.Store used for local runs and tests.
// Each key carries a version; transactions commit only if every watched
// version is unchanged, mirroring WATCH semantics.
package memory

import (
	"context"
	"errors"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/coursedex/internal/db"
)

var (
	_ db.Store        = (*Store)(nil)
	_ db.SortedLister = (*Store)(nil)
)

type entry struct {
	fields    map[string]string
	version   uint64
	expiresAt time.Time
	deleted   bool
}

// Store is a mutex-guarded versioned hash map.
type Store struct {
	mu   sync.RWMutex
	data map[string]*entry
	now  func() time.Time

	// BeforeCommit, when set, runs between the snapshot read and the commit
	// of every transaction. Tests use it to inject concurrent writers.
	BeforeCommit func(keys []string)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]*entry), now: time.Now}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// HSet merges fields into key.
func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(key, fields)
	return nil
}

// HGetAll returns a copy of the hash or an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.live(key)
	if e == nil {
		return map[string]string{}, nil
	}
	return clone(e.fields), nil
}

// HGetAllMulti returns copies of several hashes.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i], _ = s.HGetAll(ctx, k)
	}
	return out, nil
}

// Del removes key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Keep a tombstone so watchers of key observe the version bump.
	if e, ok := s.data[key]; ok {
		e.fields = nil
		e.deleted = true
		e.version++
	}
	return nil
}

// Exists reports whether key holds a live hash.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live(key) != nil, nil
}

// Scan returns keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if s.live(k) == nil {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		if ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Transact implements db.Transactor with per-key version checks.
func (s *Store) Transact(ctx context.Context, keys []string, fn db.TxFunc) error {
	keys = db.UniqueKeys(keys)
	if len(keys) == 0 {
		return errors.New("transact: at least one key is required")
	}

	s.mu.RLock()
	snapshot := make(map[string]map[string]string, len(keys))
	versions := make(map[string]uint64, len(keys))
	for _, k := range keys {
		versions[k] = s.version(k)
		if e := s.live(k); e != nil {
			snapshot[k] = clone(e.fields)
		} else {
			snapshot[k] = map[string]string{}
		}
	}
	s.mu.RUnlock()

	buf := db.NewTxBuffer(snapshot)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	writes := buf.Writes()
	if len(writes) == 0 {
		return nil
	}

	if s.BeforeCommit != nil {
		s.BeforeCommit(keys)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if s.version(k) != versions[k] {
			return db.ErrTxConflict
		}
	}
	for _, w := range writes {
		e := s.merge(w.Key, w.Fields)
		if w.TTL > 0 {
			e.expiresAt = s.now().Add(w.TTL)
		}
	}
	return nil
}

// ListSorted scans the prefix and sorts by a numeric field. Non-numeric
// values sort as zero. Ties break on key for stable output.
func (s *Store) ListSorted(_ context.Context, q *db.SortedQuery) (*db.SearchResult, error) {
	if q.SortBy == "" {
		return nil, errors.New("sort field is required")
	}

	s.mu.RLock()
	var entries []db.SearchEntry
	for k := range s.data {
		e := s.live(k)
		if e == nil || !strings.HasPrefix(k, q.Prefix) {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: k, Fields: project(e.fields, q.ReturnFields)})
	}
	fieldsByKey := make(map[string]int64, len(entries))
	for _, en := range entries {
		n, _ := strconv.ParseInt(s.data[en.Key].fields[q.SortBy], 10, 64)
		fieldsByKey[en.Key] = n
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b db.SearchEntry) int {
		na, nb := fieldsByKey[a.Key], fieldsByKey[b.Key]
		if na != nb {
			if (na > nb) == q.Descending {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})

	total := len(entries)
	lo := min(max(q.Offset, 0), total)
	hi := total
	if q.Limit >= 0 {
		hi = min(lo+q.Limit, total)
	}
	return &db.SearchResult{Total: total, Entries: entries[lo:hi]}, nil
}

func (s *Store) version(key string) uint64 {
	if e, ok := s.data[key]; ok {
		return e.version
	}
	return 0
}

func (s *Store) live(key string) *entry {
	e, ok := s.data[key]
	if !ok || e.deleted {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		return nil
	}
	return e
}

// merge must run under the write lock.
func (s *Store) merge(key string, fields map[string]string) *entry {
	e := s.live(key)
	if e == nil {
		e = &entry{fields: make(map[string]string, len(fields)), version: s.version(key)}
		s.data[key] = e
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	e.version++
	return e
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func project(m map[string]string, fields []string) map[string]string {
	if len(fields) == 0 {
		return clone(m)
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}
