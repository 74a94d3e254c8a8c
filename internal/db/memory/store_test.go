package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/coursedex/internal/db"
)

func TestHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.HSet(ctx, "k", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	_ = s.HSet(ctx, "k", map[string]string{"b": "2"})

	got, _ := s.HGetAll(ctx, "k")
	if got["a"] != "1" || got["b"] != "2" {
		t.Errorf("HGetAll = %v", got)
	}

	missing, err := s.HGetAll(ctx, "nope")
	if err != nil || missing == nil || len(missing) != 0 {
		t.Errorf("missing key: got %v, %v; want empty map", missing, err)
	}

	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Error("expected k to exist")
	}
	_ = s.Del(ctx, "k")
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("expected k to be deleted")
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, k := range []string{"p:category:a", "p:category:b", "p:event:x"} {
		_ = s.HSet(ctx, k, map[string]string{"f": "v"})
	}

	keys, err := s.Scan(ctx, "p:category:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "p:category:a" || keys[1] != "p:category:b" {
		t.Errorf("Scan = %v", keys)
	}
}

func TestTransact_Commits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.HSet(ctx, "a", map[string]string{"n": "1"})

	err := s.Transact(ctx, []string{"a", "b"}, func(ctx context.Context, tx db.Tx) error {
		a, _ := tx.HGetAll(ctx, "a")
		b, _ := tx.HGetAll(ctx, "b")
		if a["n"] != "1" || len(b) != 0 {
			t.Errorf("snapshot a=%v b=%v", a, b)
		}
		tx.HSet("a", map[string]string{"n": "2"})
		tx.HSet("b", map[string]string{"n": "1"})
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	a, _ := s.HGetAll(ctx, "a")
	b, _ := s.HGetAll(ctx, "b")
	if a["n"] != "2" || b["n"] != "1" {
		t.Errorf("after commit a=%v b=%v", a, b)
	}
}

func TestTransact_ConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.HSet(ctx, "a", map[string]string{"n": "1"})

	s.BeforeCommit = func([]string) {
		s.BeforeCommit = nil
		_ = s.HSet(ctx, "a", map[string]string{"n": "10"})
	}

	err := s.Transact(ctx, []string{"a", "b"}, func(_ context.Context, tx db.Tx) error {
		tx.HSet("a", map[string]string{"n": "2"})
		tx.HSet("b", map[string]string{"n": "1"})
		return nil
	})
	if !errors.Is(err, db.ErrTxConflict) {
		t.Fatalf("err = %v, want ErrTxConflict", err)
	}

	a, _ := s.HGetAll(ctx, "a")
	if a["n"] != "10" {
		t.Errorf("a = %v, want concurrent value preserved", a)
	}
	if ok, _ := s.Exists(ctx, "b"); ok {
		t.Error("b must not be written on conflict")
	}
}

func TestTransact_DeleteIsAConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.HSet(ctx, "a", map[string]string{"n": "1"})
	s.BeforeCommit = func([]string) {
		s.BeforeCommit = nil
		_ = s.Del(ctx, "a")
	}

	err := s.Transact(ctx, []string{"a"}, func(_ context.Context, tx db.Tx) error {
		tx.HSet("a", map[string]string{"n": "0"})
		return nil
	})
	if !errors.Is(err, db.ErrTxConflict) {
		t.Errorf("err = %v, want ErrTxConflict", err)
	}
}

func TestTransact_ExpireHidesKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	err := s.Transact(ctx, []string{"marker"}, func(_ context.Context, tx db.Tx) error {
		tx.HSet("marker", map[string]string{"applied": "1"})
		tx.Expire("marker", time.Minute)
		return nil
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if ok, _ := s.Exists(ctx, "marker"); !ok {
		t.Fatal("marker should exist before ttl")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := s.Exists(ctx, "marker"); ok {
		t.Error("marker should be expired")
	}
}

func TestListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.HSet(ctx, "c:a", map[string]string{"name": "A", "coursesCounter": "3"})
	_ = s.HSet(ctx, "c:b", map[string]string{"name": "B", "coursesCounter": "9"})
	_ = s.HSet(ctx, "c:c", map[string]string{"name": "C", "coursesCounter": "3"})
	_ = s.HSet(ctx, "other:z", map[string]string{"coursesCounter": "100"})

	res, err := s.ListSorted(ctx, &db.SortedQuery{
		Prefix: "c:", SortBy: "coursesCounter", Descending: true, Limit: 2,
	})
	if err != nil {
		t.Fatalf("ListSorted: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("total = %d, want 3", res.Total)
	}
	if len(res.Entries) != 2 || res.Entries[0].Key != "c:b" || res.Entries[1].Key != "c:a" {
		t.Errorf("entries = %+v", res.Entries)
	}

	if _, err := s.ListSorted(ctx, &db.SortedQuery{Prefix: "c:"}); err == nil {
		t.Error("expected error for missing sort field")
	}
}
