package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/db"
)

type rowState struct {
	version int64
	exists  bool
}

// Transact implements db.Transactor. Rows are read with their versions, fn
// runs against that snapshot, and the commit applies each write with a
// version-conditioned UPDATE (or an insert-if-absent for rows that did not
// exist). Watched rows that were not written are re-checked under FOR SHARE.
// Any mismatch rolls back with db.ErrTxConflict.
func (s *Store) Transact(ctx context.Context, keys []string, fn db.TxFunc) error {
	keys = db.UniqueKeys(keys)
	if len(keys) == 0 {
		return errors.New("transact: at least one key is required")
	}

	snapshot, states, err := s.readSnapshot(ctx, keys)
	if err != nil {
		return err
	}

	buf := db.NewTxBuffer(snapshot)
	if err := fn(ctx, buf); err != nil {
		return err
	}
	writes := buf.Writes()
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	written := make(map[string]bool, len(writes))
	for _, w := range writes {
		written[w.Key] = true
		if err := applyWrite(ctx, tx, w, states); err != nil {
			return err
		}
	}

	for _, k := range keys {
		if written[k] {
			continue
		}
		if err := checkUnchanged(ctx, tx, k, states[k]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

func (s *Store) readSnapshot(
	ctx context.Context, keys []string,
) (map[string]map[string]string, map[string]rowState, error) {
	snapshot := make(map[string]map[string]string, len(keys))
	states := make(map[string]rowState, len(keys))
	for _, k := range keys {
		snapshot[k] = map[string]string{}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, fields, version, "+liveCond+" FROM kv_hashes WHERE key = ANY($1)", keys,
	)
	if err != nil {
		return nil, nil, &db.Error{Op: db.OpWatch, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key     string
			raw     []byte
			version int64
			live    bool
		)
		if err := rows.Scan(&key, &raw, &version, &live); err != nil {
			return nil, nil, &db.Error{Op: db.OpWatch, Err: err}
		}
		states[key] = rowState{version: version, exists: true}
		if !live {
			continue
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, nil, err
		}
		snapshot[key] = fields
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &db.Error{Op: db.OpWatch, Err: err}
	}
	return snapshot, states, nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, w db.TxWrite, states map[string]rowState) error {
	payload, err := json.Marshal(w.Fields)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	ttl := w.TTL.Milliseconds()

	// states only holds rows that existed at snapshot time; anything else
	// must still be absent at commit.
	var res sql.Result
	if state, ok := states[w.Key]; ok {
		res, err = tx.ExecContext(ctx, updateIfVersionSQL, w.Key, string(payload), ttl, state.version)
	} else {
		res, err = tx.ExecContext(ctx, insertIfAbsentSQL, w.Key, string(payload), ttl)
	}
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", w.Key, err)}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	if n == 0 {
		return db.ErrTxConflict
	}
	return nil
}

func checkUnchanged(ctx context.Context, tx *sql.Tx, key string, want rowState) error {
	var version int64
	err := tx.QueryRowContext(ctx,
		"SELECT version FROM kv_hashes WHERE key = $1 FOR SHARE", key,
	).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if want.exists {
			return db.ErrTxConflict
		}
		return nil
	case err != nil:
		return &db.Error{Op: db.OpWatch, Err: err}
	case !want.exists || version != want.version:
		return db.ErrTxConflict
	}
	return nil
}
