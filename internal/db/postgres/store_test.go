package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/coursedex/internal/db"
)

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"coursedex:category:*", "coursedex:category:%"},
		{"a_b%c*", `a\_b\%c%`},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}
	for _, tc := range tests {
		if got := globToLike(tc.in); got != tc.want {
			t.Errorf("globToLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewStore_RequiresDSN(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Error("expected error for empty dsn")
	}
}

// testStore connects to COURSEDEX_TEST_POSTGRES_DSN and migrates. Tests are
// skipped when the variable is unset or the server is unreachable.
func testStore(t *testing.T) (*Store, string) {
	t.Helper()

	dsn := os.Getenv("COURSEDEX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping integration test: COURSEDEX_TEST_POSTGRES_DSN not set")
	}
	s, err := NewStore(Config{DSN: dsn})
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		s.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM kv_hashes WHERE key LIKE $1 ESCAPE '\'`, globToLike(prefix)+"%")
		s.Close()
	})
	return s, prefix
}

func TestIntegration_HashAndList(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()

	_ = s.HSet(ctx, p+"a", map[string]string{"name": "A", "coursesCounter": "2"})
	_ = s.HSet(ctx, p+"b", map[string]string{"name": "B", "coursesCounter": "7"})
	_ = s.HSet(ctx, p+"a", map[string]string{"coursesCounter": "3"})

	got, err := s.HGetAll(ctx, p+"a")
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if got["name"] != "A" || got["coursesCounter"] != "3" {
		t.Errorf("merge lost fields: %v", got)
	}

	keys, err := s.Scan(ctx, p+"*")
	if err != nil || len(keys) != 2 {
		t.Fatalf("Scan = %v, %v", keys, err)
	}

	res, err := s.ListSorted(ctx, &db.SortedQuery{Prefix: p, SortBy: "coursesCounter", Descending: true, Limit: 10})
	if err != nil {
		t.Fatalf("ListSorted: %v", err)
	}
	if res.Total != 2 || res.Entries[0].Key != p+"b" {
		t.Errorf("ListSorted = %+v", res)
	}
}

func TestIntegration_TransactConflict(t *testing.T) {
	s, p := testStore(t)
	ctx := context.Background()
	key := p + "cat"
	_ = s.HSet(ctx, key, map[string]string{"coursesCounter": "1"})

	err := s.Transact(ctx, []string{key, p + "marker"}, func(ctx context.Context, tx db.Tx) error {
		// Concurrent writer bumps the version after the snapshot.
		if err := s.HSet(ctx, key, map[string]string{"coursesCounter": "5"}); err != nil {
			return err
		}
		tx.HSet(key, map[string]string{"coursesCounter": "2"})
		tx.HSet(p+"marker", map[string]string{"applied": "1"})
		tx.Expire(p+"marker", time.Minute)
		return nil
	})
	if !errors.Is(err, db.ErrTxConflict) {
		t.Fatalf("err = %v, want ErrTxConflict", err)
	}
	if ok, _ := s.Exists(ctx, p+"marker"); ok {
		t.Error("marker must not be written on conflict")
	}

	err = s.Transact(ctx, []string{key}, func(ctx context.Context, tx db.Tx) error {
		doc, _ := tx.HGetAll(ctx, key)
		if doc["coursesCounter"] != "5" {
			t.Errorf("snapshot = %v", doc)
		}
		tx.HSet(key, map[string]string{"coursesCounter": "6"})
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
}
