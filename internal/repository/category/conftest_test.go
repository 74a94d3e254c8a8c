package category

import (
	"context"
	"testing"

	"github.com/kailas-cloud/coursedex/internal/db"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

const testPrefix = "coursedex:"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
	transactFn     func(ctx context.Context, keys []string, fn db.TxFunc) error

	committed []db.TxWrite
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

// Transact snapshots keys through HGetAll and records the staged writes.
func (m *mockStore) Transact(ctx context.Context, keys []string, fn db.TxFunc) error {
	if m.transactFn != nil {
		return m.transactFn(ctx, keys, fn)
	}
	snapshot := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		h, err := m.HGetAll(ctx, k)
		if err != nil {
			return err
		}
		snapshot[k] = h
	}
	buf := db.NewTxBuffer(snapshot)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	m.committed = append(m.committed, buf.Writes()...)
	return nil
}

// sortedStore adds db.SortedLister and db.IndexManager to mockStore.
type sortedStore struct {
	mockStore
	listSortedFn  func(ctx context.Context, q *db.SortedQuery) (*db.SearchResult, error)
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	created       []*db.IndexDefinition
}

func (s *sortedStore) ListSorted(ctx context.Context, q *db.SortedQuery) (*db.SearchResult, error) {
	if s.listSortedFn != nil {
		return s.listSortedFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (s *sortedStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	s.created = append(s.created, def)
	return nil
}

func (s *sortedStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if s.indexExistsFn != nil {
		return s.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, testPrefix), ms
}

func mustRef(t *testing.T, id, name string) course.Ref {
	t.Helper()
	r, err := course.NewRef(id, name)
	if err != nil {
		t.Fatalf("NewRef(%q, %q): %v", id, name, err)
	}
	return r
}
