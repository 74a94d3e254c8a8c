// Package category stores category documents as hashes and applies counter
// operations to them inside optimistic store transactions.
package category

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/coursedex/internal/db"
	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

// store is the consumer interface for category documents (ISP).
// Drivers that also implement db.SortedLister and db.IndexManager get
// counter-ordered listings.
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Transact(ctx context.Context, keys []string, fn db.TxFunc) error
}

// Marker asks Apply to record the event as applied for the kind, and to
// report a duplicate when the record already exists.
type Marker struct {
	EventID string
	TTL     time.Duration
}

// Applied is the committed outcome of Apply.
type Applied struct {
	Results   []category.Result
	Duplicate bool
}

// Listing is a bounded read of one kind's documents.
type Listing struct {
	Docs    []category.Document
	Ordered bool // sorted by coursesCounter desc
	Skipped int  // malformed documents left out
}

// Repo implements the category repositories of usecase/search and usecase/counter.
type Repo struct {
	store  store
	prefix string
}

// New creates a category repository. prefix namespaces every key (e.g. "coursedex:").
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// EnsureIndexes creates the per-kind counter index on drivers that manage
// secondary indexes. Drivers without one are left alone; List then scans.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	im, ok := r.store.(db.IndexManager)
	if !ok {
		return nil
	}

	var errs []error
	for _, k := range course.Kinds() {
		name := r.indexName(k)
		exists, err := im.IndexExists(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("check index %s: %w", name, err))
			continue
		}
		if exists {
			continue
		}
		def, err := db.NewIndex(name).
			Prefix(r.kindPrefix(k)).
			SortableNumeric(fieldCounter).
			Build()
		if err != nil {
			errs = append(errs, fmt.Errorf("build index %s: %w", name, err))
			continue
		}
		if err := im.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			errs = append(errs, fmt.Errorf("create index %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Get retrieves one category document.
func (r *Repo) Get(ctx context.Context, kind course.Kind, id string) (category.Document, error) {
	if id == "" || strings.ContainsAny(id, ":*") {
		return category.Document{}, fmt.Errorf("%w: invalid category id %q", domain.ErrValidation, id)
	}
	m, err := r.store.HGetAll(ctx, r.key(kind, id))
	if err != nil {
		return category.Document{}, fmt.Errorf("hgetall category %s/%s: %w", kind, id, err)
	}
	if len(m) == 0 {
		return category.Document{}, domain.ErrNotFound
	}
	return docFromHash(id, m)
}

// List reads up to limit documents of kind. When the driver has a usable
// counter index the result is ordered by coursesCounter desc; otherwise it
// is a bounded scan in key order.
func (r *Repo) List(ctx context.Context, kind course.Kind, limit int) (Listing, error) {
	if limit <= 0 {
		return Listing{}, nil
	}

	if sl, ok := r.store.(db.SortedLister); ok {
		res, err := sl.ListSorted(ctx, &db.SortedQuery{
			IndexName:    r.indexName(kind),
			Prefix:       r.kindPrefix(kind),
			SortBy:       fieldCounter,
			Descending:   true,
			Limit:        limit,
			ReturnFields: []string{fieldName, fieldCounter},
		})
		switch {
		case err == nil:
			l := r.decodeEntries(res.Entries)
			l.Ordered = true
			return l, nil
		case errors.Is(err, db.ErrIndexNotFound), errors.Is(err, db.ErrUnsupported):
			// fall through to scan
		default:
			return Listing{}, fmt.Errorf("list sorted %s: %w", kind, err)
		}
	}

	return r.scan(ctx, kind, limit)
}

func (r *Repo) scan(ctx context.Context, kind course.Kind, limit int) (Listing, error) {
	keys, err := r.store.Scan(ctx, r.kindPrefix(kind)+"*")
	if err != nil {
		return Listing{}, fmt.Errorf("scan %s: %w", kind, err)
	}
	slices.Sort(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	if len(keys) == 0 {
		return Listing{}, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return Listing{}, fmt.Errorf("hgetall multi %s: %w", kind, err)
	}

	entries := make([]db.SearchEntry, 0, len(keys))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: keys[i], Fields: m})
	}
	return r.decodeEntries(entries), nil
}

func (r *Repo) decodeEntries(entries []db.SearchEntry) Listing {
	l := Listing{Docs: make([]category.Document, 0, len(entries))}
	for _, e := range entries {
		id := e.Key[strings.LastIndexByte(e.Key, ':')+1:]
		doc, err := docFromHash(id, e.Fields)
		if err != nil {
			l.Skipped++
			continue
		}
		l.Docs = append(l.Docs, doc)
	}
	return l
}

// Apply runs ops against their documents in one store transaction.
// Every op reads the current state of its document, runs the counter state
// machine and stages the write, so the whole batch commits or nothing does.
// With a marker, a previously recorded marker short-circuits to Duplicate
// and a new marker is written in the same transaction as the counters.
//
// db.ErrTxConflict is returned unchanged when another writer won the race.
func (r *Repo) Apply(ctx context.Context, kind course.Kind, ops []category.Op, marker *Marker) (Applied, error) {
	if len(ops) == 0 {
		return Applied{}, nil
	}

	keys := make([]string, 0, len(ops)+1)
	for _, op := range ops {
		if op.Key.Kind != kind {
			return Applied{}, fmt.Errorf("%w: op %s does not belong to kind %s", domain.ErrValidation, op, kind)
		}
		keys = append(keys, r.key(op.Key.Kind, op.Key.ID))
	}
	var mk string
	if marker != nil && marker.EventID != "" {
		mk = r.markerKey(marker.EventID, kind)
		keys = append(keys, mk)
	}
	keys = db.UniqueKeys(keys)

	var out Applied
	err := r.store.Transact(ctx, keys, func(ctx context.Context, tx db.Tx) error {
		out = Applied{Results: make([]category.Result, 0, len(ops))}

		if mk != "" {
			m, err := tx.HGetAll(ctx, mk)
			if err != nil {
				return fmt.Errorf("read marker: %w", err)
			}
			if len(m) > 0 {
				out.Duplicate = true
				return nil
			}
		}

		staged := make(map[string]category.Document, len(ops))
		for _, op := range ops {
			key := r.key(op.Key.Kind, op.Key.ID)

			doc, present := staged[key]
			if !present {
				m, err := tx.HGetAll(ctx, key)
				if err != nil {
					return fmt.Errorf("read %s: %w", op.Key, err)
				}
				if present = len(m) > 0; present {
					if doc, err = docFromHash(op.Key.ID, m); err != nil {
						return err
					}
				}
			}

			next, tr := category.Apply(op, doc, present)
			if tr.Writes() {
				tx.HSet(key, docToHash(next))
				staged[key] = next
			}
			out.Results = append(out.Results, category.Result{Op: op, Transition: tr, Counter: next.CoursesCounter})
		}

		if mk != "" {
			tx.HSet(mk, map[string]string{"event": marker.EventID, "kind": string(kind)})
			if marker.TTL > 0 {
				tx.Expire(mk, marker.TTL)
			}
		}
		return nil
	})
	if err != nil {
		return Applied{}, err
	}
	return out, nil
}

// Key patterns:
//   {prefix}category:{kind}:{id}    category document
//   {prefix}category:{kind}:idx     counter index
//   {prefix}event:{id}:{kind}       applied-event marker

func (r *Repo) key(kind course.Kind, id string) string {
	return r.kindPrefix(kind) + id
}

func (r *Repo) kindPrefix(kind course.Kind) string {
	return fmt.Sprintf("%scategory:%s:", r.prefix, kind)
}

func (r *Repo) indexName(kind course.Kind) string {
	return fmt.Sprintf("%scategory:%s:idx", r.prefix, kind)
}

func (r *Repo) markerKey(eventID string, kind course.Kind) string {
	return fmt.Sprintf("%sevent:%s:%s", r.prefix, eventID, kind)
}
