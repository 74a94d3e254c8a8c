package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/coursedex/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"hello world", "world", true},
		{"short", "longer than input", false},
		{"exact", "exact", true},
		{"", "", true},
		{"notempty", "", true},
	}
	for _, tc := range tests {
		got := containsIgnoreCase(tc.s, tc.sub)
		if got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "mykey"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "mykey", map[string]string{"f1": "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "mykey", map[string]string{"f": "v"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestHGetAll_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "mykey")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"f1": mock.RedisString("v1"),
			"f2": mock.RedisString("v2"),
		})))

	s := NewStoreForTest(c)
	m, err := s.HGetAll(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["f1"] != "v1" || m["f2"] != "v2" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestHGetAll_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "mykey")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.HGetAll(context.Background(), "mykey")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHGetAllMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("a"),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"f": mock.RedisString("b"),
			})),
		})

	s := NewStoreForTest(c)
	results, err := s.HGetAllMulti(context.Background(), []string{"k1", "k2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0]["f"] != "a" || results[1]["f"] != "b" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestHGetAllMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	results, err := s.HGetAllMulti(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "mykey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExists_True(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	exists, err := s.Exists(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestExists_False(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "mykey")).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	exists, err := s.Exists(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected false")
	}
}

func TestScan_SinglePage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	// SCAN returns [cursor, [elements...]]
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0), // cursor=0 means done
			mock.RedisArray(mock.RedisString("key1"), mock.RedisString("key2")),
		)))

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // cursor=42 means more
					mock.RedisArray(mock.RedisString("key1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0), // cursor=0 means done
				mock.RedisArray(mock.RedisString("key2")),
			))
		}).Times(2)

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:        "test:idx",
		StorageType: db.StorageHash,
		Prefixes:    []string{"test:"},
		Fields: []db.IndexField{
			{Name: "coursesCounter", Type: db.IndexFieldNumeric, Sortable: true},
		},
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldNumeric}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldNumeric}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexExists_True(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("test:idx"))))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "test:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestIndexExists_False(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "test:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected false")
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	_, err := buildCreateArgs(&db.IndexDefinition{Name: "", Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldNumeric}}})
	if err == nil {
		t.Error("expected error for empty name")
	}

	_, err = buildCreateArgs(&db.IndexDefinition{Name: "test"})
	if err == nil {
		t.Error("expected error for empty fields")
	}
}

func TestBuildFieldArgs_Numeric(t *testing.T) {
	tests := []struct {
		name  string
		field db.IndexField
		want  []string
	}{
		{"numeric", db.IndexField{Name: "f", Type: db.IndexFieldNumeric}, []string{"f", "NUMERIC"}},
		{"sortable", db.IndexField{Name: "f", Type: db.IndexFieldNumeric, Sortable: true}, []string{"f", "NUMERIC", "SORTABLE"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := buildFieldArgs(&tc.field)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(args, " ") != strings.Join(tc.want, " ") {
				t.Errorf("args = %v, want %v", args, tc.want)
			}
		})
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	_, err := buildFieldArgs(&db.IndexField{Name: "", Type: db.IndexFieldNumeric})
	if err == nil {
		t.Error("expected error for empty field name")
	}

	_, err = buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldType(99)})
	if err == nil {
		t.Error("expected error for unknown type")
	}
}

// --- search.go tests ---

func TestListSorted_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.SEARCH", "cat:idx", "*", "SORTBY", "coursesCounter", "DESC", "LIMIT", "0", "2",
		)).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(5),
			mock.RedisString("cat:math"),
			mock.RedisArray(mock.RedisString("coursesCounter"), mock.RedisString("9")),
			mock.RedisString("cat:phys"),
			mock.RedisArray(mock.RedisString("coursesCounter"), mock.RedisString("4")),
		)))

	s := NewStoreForTest(c)
	result, err := s.ListSorted(context.Background(), &db.SortedQuery{
		IndexName: "cat:idx", SortBy: "coursesCounter", Descending: true, Limit: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Total)
	}
	if len(result.Entries) != 2 || result.Entries[0].Key != "cat:math" {
		t.Fatalf("unexpected entries: %+v", result.Entries)
	}
	if result.Entries[1].Fields["coursesCounter"] != "4" {
		t.Errorf("unexpected fields: %v", result.Entries[1].Fields)
	}
}

func TestListSorted_UnknownIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("cat:idx: no such index")))

	s := NewStoreForTest(c)
	_, err := s.ListSorted(context.Background(), &db.SortedQuery{IndexName: "cat:idx", SortBy: "n", Limit: 1})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestListSorted_Validation(t *testing.T) {
	s := NewStoreForTest(nil)
	if _, err := s.ListSorted(context.Background(), &db.SortedQuery{SortBy: "n", Limit: 1}); err == nil {
		t.Error("expected error for empty index")
	}
	if _, err := s.ListSorted(context.Background(), &db.SortedQuery{IndexName: "i", Limit: 1}); err == nil {
		t.Error("expected error for empty sort field")
	}
	res, err := s.ListSorted(context.Background(), &db.SortedQuery{IndexName: "i", SortBy: "n"})
	if err != nil || len(res.Entries) != 0 {
		t.Errorf("zero limit: got %v, %v", res, err)
	}
}

// --- tx.go tests ---

// expectTx wires a dedicated client that answers WATCH, the snapshot HGETALLs
// and, when exec is non-nil, the MULTI..EXEC pipeline.
func expectTx(
	t *testing.T, snapshot []rueidis.RedisResult, exec func(cmds [][]string) []rueidis.RedisResult,
) (*mock.Client, *mock.DedicatedClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	dc := mock.NewDedicatedClient(ctrl)

	c.EXPECT().
		Dedicated(gomock.Any()).
		DoAndReturn(func(fn func(rueidis.DedicatedClient) error) error { return fn(dc) })

	dc.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "WATCH" })).
		Return(mock.Result(mock.RedisString("OK")))

	calls := 0
	dc.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			calls++
			if calls == 1 {
				return snapshot
			}
			raw := make([][]string, len(cmds))
			for i, cmd := range cmds {
				raw[i] = cmd.Commands()
			}
			return exec(raw)
		}).
		AnyTimes()

	return c, dc
}

func TestTransact_Commit(t *testing.T) {
	var sent [][]string
	c, _ := expectTx(t,
		[]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"coursesCounter": mock.RedisString("2"),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})),
		},
		func(cmds [][]string) []rueidis.RedisResult {
			sent = cmds
			out := make([]rueidis.RedisResult, len(cmds))
			for i := range out {
				out[i] = mock.Result(mock.RedisString("QUEUED"))
			}
			out[len(out)-1] = mock.Result(mock.RedisArray(mock.RedisInt64(0), mock.RedisInt64(1)))
			return out
		},
	)

	s := NewStoreForTest(c)
	err := s.Transact(context.Background(), []string{"cat:a", "marker"}, func(ctx context.Context, tx db.Tx) error {
		doc, err := tx.HGetAll(ctx, "cat:a")
		if err != nil {
			return err
		}
		if doc["coursesCounter"] != "2" {
			t.Errorf("snapshot = %v", doc)
		}
		tx.HSet("cat:a", map[string]string{"coursesCounter": "3"})
		tx.HSet("marker", map[string]string{"applied": "1"})
		tx.Expire("marker", time.Minute)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sent) != 5 {
		t.Fatalf("expected MULTI, 2x HSET, PEXPIRE, EXEC; got %v", sent)
	}
	if sent[0][0] != "MULTI" || sent[len(sent)-1][0] != "EXEC" {
		t.Errorf("pipeline not wrapped in MULTI/EXEC: %v", sent)
	}
	if sent[3][0] != "PEXPIRE" || sent[3][1] != "marker" || sent[3][2] != "60000" {
		t.Errorf("unexpected PEXPIRE: %v", sent[3])
	}
}

func TestTransact_Conflict(t *testing.T) {
	c, _ := expectTx(t,
		[]rueidis.RedisResult{mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{}))},
		func(cmds [][]string) []rueidis.RedisResult {
			out := make([]rueidis.RedisResult, len(cmds))
			for i := range out {
				out[i] = mock.Result(mock.RedisString("QUEUED"))
			}
			out[len(out)-1] = mock.Result(mock.RedisNil())
			return out
		},
	)

	s := NewStoreForTest(c)
	err := s.Transact(context.Background(), []string{"cat:a"}, func(_ context.Context, tx db.Tx) error {
		tx.HSet("cat:a", map[string]string{"coursesCounter": "1"})
		return nil
	})
	if !errors.Is(err, db.ErrTxConflict) {
		t.Errorf("expected ErrTxConflict, got %v", err)
	}
}

func TestTransact_NoWritesUnwatches(t *testing.T) {
	c, dc := expectTx(t,
		[]rueidis.RedisResult{mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{}))},
		nil,
	)
	dc.EXPECT().
		Do(gomock.Any(), mock.Match("UNWATCH")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	err := s.Transact(context.Background(), []string{"cat:a"}, func(context.Context, db.Tx) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransact_CallbackErrorAborts(t *testing.T) {
	c, dc := expectTx(t,
		[]rueidis.RedisResult{mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{}))},
		nil,
	)
	dc.EXPECT().
		Do(gomock.Any(), mock.Match("UNWATCH")).
		Return(mock.Result(mock.RedisString("OK")))

	boom := errors.New("boom")
	s := NewStoreForTest(c)
	err := s.Transact(context.Background(), []string{"cat:a"}, func(_ context.Context, tx db.Tx) error {
		tx.HSet("cat:a", map[string]string{"x": "1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestTransact_NoKeys(t *testing.T) {
	s := NewStoreForTest(nil)
	if err := s.Transact(context.Background(), nil, nil); err == nil {
		t.Error("expected error for empty key set")
	}
}

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
