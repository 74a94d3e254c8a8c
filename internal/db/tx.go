package db

import (
	"context"
	"time"
)

// Transactor runs optimistic read-modify-write transactions over a fixed key set.
//
// The driver snapshots every key in keys, invokes fn, and commits the staged
// writes atomically only if none of the keys changed since the snapshot.
// A lost race returns ErrTxConflict and nothing is written. fn may be invoked
// at most once per Transact call; retrying is the caller's job.
type Transactor interface {
	Transact(ctx context.Context, keys []string, fn TxFunc) error
}

// TxFunc reads through tx and stages writes on it. Returning an error aborts
// the transaction without writing.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the view a TxFunc gets of the store.
type Tx interface {
	// HGetAll returns the snapshot of a watched key. Missing keys yield an
	// empty map. Reading a key outside the watched set is an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HSet stages a merge of fields into key.
	HSet(key string, fields map[string]string)
	// Expire stages a TTL for key. Used for short-lived marker documents.
	Expire(key string, ttl time.Duration)
}

// TxWrite is one staged mutation. Drivers apply the writes of a commit in order.
type TxWrite struct {
	Key    string
	Fields map[string]string
	TTL    time.Duration
}

// TxBuffer is a reusable Tx implementation for drivers: it serves reads from
// a snapshot and records writes for the commit phase.
type TxBuffer struct {
	snapshot map[string]map[string]string
	writes   []TxWrite
	index    map[string]int
}

// NewTxBuffer creates a buffer over a snapshot keyed by watched key.
func NewTxBuffer(snapshot map[string]map[string]string) *TxBuffer {
	return &TxBuffer{snapshot: snapshot, index: make(map[string]int)}
}

// HGetAll implements Tx.
func (b *TxBuffer) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m, ok := b.snapshot[key]
	if !ok {
		return nil, &Error{Op: OpHGetAll, Err: ErrKeyNotWatched}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// HSet implements Tx. Repeated writes to the same key are merged.
func (b *TxBuffer) HSet(key string, fields map[string]string) {
	w := b.write(key)
	for k, v := range fields {
		w.Fields[k] = v
	}
}

// Expire implements Tx.
func (b *TxBuffer) Expire(key string, ttl time.Duration) {
	b.write(key).TTL = ttl
}

// Writes returns staged writes in first-touch order.
func (b *TxBuffer) Writes() []TxWrite {
	return b.writes
}

// Keys returns the watched keys.
func (b *TxBuffer) Keys() []string {
	keys := make([]string, 0, len(b.snapshot))
	for k := range b.snapshot {
		keys = append(keys, k)
	}
	return keys
}

func (b *TxBuffer) write(key string) *TxWrite {
	i, ok := b.index[key]
	if !ok {
		b.writes = append(b.writes, TxWrite{Key: key, Fields: make(map[string]string)})
		i = len(b.writes) - 1
		b.index[key] = i
	}
	return &b.writes[i]
}

// UniqueKeys returns keys with duplicates removed, preserving first occurrence.
func UniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
