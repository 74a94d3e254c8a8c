// Package deadletter keeps counter updates that were dropped after
// exhausting retries, so an operator can inspect and replay them.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/kailas-cloud/coursedex/internal/db"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
)

// store is the consumer interface for dead letters (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Transact(ctx context.Context, keys []string, fn db.TxFunc) error
}

// Entry is a stored dropped update.
type Entry struct {
	EventID  string          `json:"event_id"`
	Event    string          `json:"event"`
	CourseID string          `json:"course_id"`
	Kind     string          `json:"kind"`
	Before   json.RawMessage `json:"before"`
	After    json.RawMessage `json:"after"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// Repo implements usecase/counter.FailureSink on top of the store.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// New creates a dead letter repository. Entries expire after ttl; 0 keeps them.
func New(s store, prefix string, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: prefix, ttl: ttl, now: time.Now}
}

// Record stores f. A later failure of the same event and kind overwrites it.
func (r *Repo) Record(ctx context.Context, f event.Failure) error {
	before, err := json.Marshal(f.Before)
	if err != nil {
		return fmt.Errorf("marshal before: %w", err)
	}
	after, err := json.Marshal(f.After)
	if err != nil {
		return fmt.Errorf("marshal after: %w", err)
	}

	errText := ""
	if f.Err != nil {
		errText = f.Err.Error()
	}
	fields := map[string]string{
		"event_id":  f.EventID,
		"event":     string(f.Type),
		"course_id": f.CourseID,
		"kind":      string(f.Kind),
		"before":    string(before),
		"after":     string(after),
		"attempts":  strconv.Itoa(f.Attempts),
		"error":     errText,
		"failed_at": r.now().UTC().Format(time.RFC3339Nano),
	}

	key := r.key(string(f.Kind), f.EventID)
	err = r.store.Transact(ctx, []string{key}, func(_ context.Context, tx db.Tx) error {
		tx.HSet(key, fields)
		if r.ttl > 0 {
			tx.Expire(key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record dead letter %s: %w", key, err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]Entry, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"deadletter:*")
	if err != nil {
		return nil, fmt.Errorf("scan dead letters: %w", err)
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi dead letters: %w", err)
	}

	entries := make([]Entry, 0, len(hashes))
	for _, m := range hashes {
		if len(m) == 0 {
			continue
		}
		entries = append(entries, entryFromHash(m))
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return b.FailedAt.Compare(a.FailedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func entryFromHash(m map[string]string) Entry {
	attempts, _ := strconv.Atoi(m["attempts"])
	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])
	return Entry{
		EventID:  m["event_id"],
		Event:    m["event"],
		CourseID: m["course_id"],
		Kind:     m["kind"],
		Before:   rawOrNull(m["before"]),
		After:    rawOrNull(m["after"]),
		Attempts: attempts,
		Error:    m["error"],
		FailedAt: failedAt,
	}
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// {prefix}deadletter:{kind}:{event_id}
func (r *Repo) key(kind, eventID string) string {
	return fmt.Sprintf("%sdeadletter:%s:%s", r.prefix, kind, eventID)
}
