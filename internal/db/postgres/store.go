// Package postgres implements db.Store on a single PostgreSQL table of JSONB
// hashes. Every row carries a version; transactions commit with conditional
// writes and report db.ErrTxConflict when a watched row moved.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/kailas-cloud/coursedex/internal/db"
)

var (
	_ db.Store        = (*Store)(nil)
	_ db.SortedLister = (*Store)(nil)
)

const liveCond = "(expires_at IS NULL OR expires_at > now())"

const (
	upsertSQL = `
INSERT INTO kv_hashes (key, fields, version, expires_at)
VALUES ($1, $2::jsonb, 1, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond' END)
ON CONFLICT (key) DO UPDATE SET
    fields = CASE WHEN kv_hashes.expires_at IS NULL OR kv_hashes.expires_at > now()
                  THEN kv_hashes.fields || EXCLUDED.fields ELSE EXCLUDED.fields END,
    version = kv_hashes.version + 1,
    expires_at = CASE WHEN $3::bigint > 0 THEN EXCLUDED.expires_at
                      WHEN kv_hashes.expires_at IS NULL OR kv_hashes.expires_at > now() THEN kv_hashes.expires_at END`

	insertIfAbsentSQL = `
INSERT INTO kv_hashes (key, fields, version, expires_at)
VALUES ($1, $2::jsonb, 1, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond' END)
ON CONFLICT (key) DO NOTHING`

	updateIfVersionSQL = `
UPDATE kv_hashes SET
    fields = CASE WHEN ` + liveCond + ` THEN fields || $2::jsonb ELSE $2::jsonb END,
    version = version + 1,
    expires_at = CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond'
                      WHEN ` + liveCond + ` THEN expires_at END
WHERE key = $1 AND version = $4`
)

// Config holds connection parameters for a PostgreSQL store.
type Config struct {
	DSN          string
	MaxOpenConns int
}

// Store implements db.Store over database/sql with the pgx driver.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool. It does not ping; use WaitForReady.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &Store{db: conn}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// HSet merges fields into key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, upsertSQL, key, string(payload), int64(0)); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGetAll returns the hash or an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT fields FROM kv_hashes WHERE key = $1 AND "+liveCond, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return decodeFields(raw)
}

// HGetAllMulti returns hashes in key order; missing keys yield empty maps.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, fields FROM kv_hashes WHERE key = ANY($1) AND "+liveCond, keys,
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	defer rows.Close()

	found := make(map[string]map[string]string, len(keys))
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		m, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		found[key] = m
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}

	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		if m, ok := found[k]; ok {
			out[i] = m
		} else {
			out[i] = map[string]string{}
		}
	}
	return out, nil
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_hashes WHERE key = $1", key); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether key holds a live hash.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM kv_hashes WHERE key = $1 AND "+liveCond+")", key,
	).Scan(&ok)
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return ok, nil
}

// Scan returns keys matching a glob pattern where '*' is the only wildcard.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_hashes WHERE key LIKE $1 ESCAPE '\' AND `+liveCond+` ORDER BY key`,
		globToLike(pattern),
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return keys, nil
}

// ListSorted orders hashes under a prefix by a numeric JSONB field.
// Values that are not integers sort as zero.
func (s *Store) ListSorted(ctx context.Context, q *db.SortedQuery) (*db.SearchResult, error) {
	if q.SortBy == "" {
		return nil, errors.New("sort field is required")
	}
	if q.Limit <= 0 {
		return &db.SearchResult{}, nil
	}

	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	like := globToLike(q.Prefix) + "%"

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM kv_hashes WHERE key LIKE $1 ESCAPE '\' AND `+liveCond, like,
	).Scan(&total); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT key, fields FROM kv_hashes
WHERE key LIKE $1 ESCAPE '\' AND `+liveCond+`
ORDER BY CASE WHEN fields->>$2::text ~ '^-?[0-9]+$' THEN (fields->>$2::text)::bigint ELSE 0 END `+order+`, key
LIMIT $3 OFFSET $4`,
		like, q.SortBy, q.Limit, max(q.Offset, 0),
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer rows.Close()

	result := &db.SearchResult{Total: total}
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, db.SearchEntry{Key: key, Fields: project(fields, q.ReturnFields)})
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return result, nil
}

func decodeFields(raw []byte) (map[string]string, error) {
	m := map[string]string{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("decode fields: %w", err)}
	}
	return m, nil
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

// globToLike converts a '*' glob to a LIKE pattern, escaping LIKE metacharacters.
func globToLike(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
