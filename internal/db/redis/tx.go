package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/coursedex/internal/db"
)

// Transact implements db.Transactor with WATCH / MULTI / EXEC on a dedicated
// connection. A nil EXEC reply means a watched key changed: db.ErrTxConflict.
func (s *Store) Transact(ctx context.Context, keys []string, fn db.TxFunc) error {
	keys = db.UniqueKeys(keys)
	if len(keys) == 0 {
		return errors.New("transact: at least one key is required")
	}

	return s.client.Dedicated(func(c rueidis.DedicatedClient) error {
		return transact(ctx, c, keys, fn)
	})
}

func transact(ctx context.Context, c rueidis.DedicatedClient, keys []string, fn db.TxFunc) error {
	if err := c.Do(ctx, c.B().Watch().Key(keys...).Build()).Error(); err != nil {
		return &db.Error{Op: db.OpWatch, Err: err}
	}

	// EXEC clears the watch set; every other exit path must UNWATCH so the
	// pooled connection comes back clean.
	execSent := false
	defer func() {
		if !execSent {
			_ = c.Do(context.WithoutCancel(ctx), c.B().Unwatch().Build()).Error()
		}
	}()

	snapshot, err := readSnapshot(ctx, c, keys)
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

	cmds := make(rueidis.Commands, 0, 2+2*len(writes))
	cmds = append(cmds, c.B().Multi().Build())
	for _, w := range writes {
		if len(w.Fields) > 0 {
			hset := c.B().Hset().Key(w.Key).FieldValue()
			for k, v := range w.Fields {
				hset = hset.FieldValue(k, v)
			}
			cmds = append(cmds, hset.Build())
		}
		if w.TTL > 0 {
			cmds = append(cmds, c.B().Pexpire().Key(w.Key).Milliseconds(w.TTL.Milliseconds()).Build())
		}
	}
	cmds = append(cmds, c.B().Exec().Build())

	execSent = true
	results := c.DoMulti(ctx, cmds...)

	for _, res := range results[:len(results)-1] {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	if err := results[len(results)-1].Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return db.ErrTxConflict
		}
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

func readSnapshot(ctx context.Context, c rueidis.DedicatedClient, keys []string) (map[string]map[string]string, error) {
	cmds := make(rueidis.Commands, len(keys))
	for i, key := range keys {
		cmds[i] = c.B().Hgetall().Key(key).Build()
	}

	snapshot := make(map[string]map[string]string, len(keys))
	for i, res := range c.DoMulti(ctx, cmds...) {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		snapshot[keys[i]] = m
	}
	return snapshot, nil
}
