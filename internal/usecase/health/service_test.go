package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockCatalog struct {
	err error
}

func (m *mockCatalog) LastError() error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		catalogErr error
		noCatalog  bool
		want       Status
		wantDB     CheckResult
		wantCat    CheckResult
	}{
		{name: "all healthy", want: Healthy, wantDB: CheckOK, wantCat: CheckOK},
		{name: "db down", dbErr: errors.New("conn refused"), want: Degraded, wantDB: CheckError, wantCat: CheckOK},
		{name: "catalog load failed", catalogErr: errors.New("access denied"), want: Degraded, wantDB: CheckOK, wantCat: CheckError},
		{
			name: "everything down", dbErr: errors.New("conn refused"), catalogErr: errors.New("timeout"),
			want: Unhealthy, wantDB: CheckError, wantCat: CheckError,
		},
		{name: "db only, down", dbErr: errors.New("conn refused"), noCatalog: true, want: Unhealthy, wantDB: CheckError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cat CatalogChecker
			if !tt.noCatalog {
				cat = &mockCatalog{err: tt.catalogErr}
			}
			r := New(&mockDBPinger{err: tt.dbErr}, cat).Check(context.Background())

			if r.Status != tt.want {
				t.Errorf("status: expected %q, got %q", tt.want, r.Status)
			}
			if r.Checks["database"] != tt.wantDB {
				t.Errorf("database: expected %q, got %q", tt.wantDB, r.Checks["database"])
			}
			if tt.noCatalog {
				if _, ok := r.Checks["catalog"]; ok {
					t.Error("catalog check should be absent")
				}
				return
			}
			if r.Checks["catalog"] != tt.wantCat {
				t.Errorf("catalog: expected %q, got %q", tt.wantCat, r.Checks["catalog"])
			}
		})
	}
}
