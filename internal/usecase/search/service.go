package search

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/search/fuzzy"
	"github.com/kailas-cloud/coursedex/internal/metrics"
	"github.com/kailas-cloud/coursedex/internal/repository/catalog"
)

// Config holds search limits.
type Config struct {
	DefaultLimit      int
	MaxLimit          int
	ScoreThreshold    int
	CategoryScanLimit int
}

// DefaultConfig returns the limits the public endpoints use.
func DefaultConfig() Config {
	return Config{DefaultLimit: 20, MaxLimit: 100, ScoreThreshold: 50, CategoryScanLimit: 500}
}

// Metric targets and paths.
const (
	targetCourses    = "courses"
	targetCategories = "categories"

	pathFast      = "fast"
	pathFuzzy     = "fuzzy"
	pathEmpty     = "empty"
	pathCancelled = "cancelled"
	pathError     = "error"
)

// Service answers fuzzy searches over the course catalog and category documents.
type Service struct {
	catalog    CatalogReader
	categories CategoryReader
	cfg        Config
	logger     *zap.Logger

	mu    sync.Mutex
	names *processedNames
}

// processedNames caches the processed display names of one catalog snapshot.
type processedNames struct {
	version uint64
	names   []string
	ids     []string
}

// New creates a search service. Zero config fields take DefaultConfig values.
func New(cat CatalogReader, categories CategoryReader, cfg Config, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.CategoryScanLimit <= 0 {
		cfg.CategoryScanLimit = def.CategoryScanLimit
	}
	return &Service{catalog: cat, categories: categories, cfg: cfg, logger: logger}
}

// Search ranks catalog courses against term. A blank term returns the first
// limit courses in catalog order. The only error is ctx's, when the request
// is cancelled mid-scoring; the partial ranking is discarded.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]course.Summary, error) {
	start := time.Now()
	limit = s.limit(limit)
	snap := s.catalog.Snapshot(ctx)

	if snap.Len() == 0 {
		metrics.ObserveSearch(targetCourses, pathEmpty, time.Since(start))
		return []course.Summary{}, nil
	}

	if fuzzy.IsBlank(term) {
		n := min(limit, snap.Len())
		out := make([]course.Summary, n)
		copy(out, snap.Courses[:n])
		metrics.ObserveSearch(targetCourses, pathFast, time.Since(start))
		return out, nil
	}

	// Symbol-only terms score 0 against everything.
	query := fuzzy.Process(term)
	if query == "" {
		metrics.ObserveSearch(targetCourses, pathEmpty, time.Since(start))
		return []course.Summary{}, nil
	}

	pn := s.processed(snap)
	hits, err := Rank(ctx, query, pn.names, pn.ids, limit, s.cfg.ScoreThreshold)
	if err != nil {
		metrics.ObserveSearch(targetCourses, pathCancelled, time.Since(start))
		return nil, fmt.Errorf("rank courses: %w", err)
	}

	out := make([]course.Summary, len(hits))
	for i, h := range hits {
		out[i] = snap.Courses[h.Index]
	}
	metrics.ObserveSearch(targetCourses, pathFuzzy, time.Since(start))
	return out, nil
}

// SearchCategories ranks up to CategoryScanLimit documents of kind against
// term. The listing is counter-ordered when the store has an index, so a
// blank term returns the most referenced categories first.
func (s *Service) SearchCategories(
	ctx context.Context, kind course.Kind, term string, limit int,
) ([]category.Document, error) {
	start := time.Now()
	limit = s.limit(limit)

	l, err := s.categories.List(ctx, kind, s.cfg.CategoryScanLimit)
	if err != nil {
		metrics.ObserveSearch(targetCategories, pathError, time.Since(start))
		return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	s.warnSkipped(kind, l.Skipped)

	if fuzzy.IsBlank(term) {
		n := min(limit, len(l.Docs))
		metrics.ObserveSearch(targetCategories, pathFast, time.Since(start))
		return l.Docs[:n:n], nil
	}
	query := fuzzy.Process(term)
	if query == "" {
		metrics.ObserveSearch(targetCategories, pathEmpty, time.Since(start))
		return []category.Document{}, nil
	}

	names := make([]string, len(l.Docs))
	ids := make([]string, len(l.Docs))
	for i, d := range l.Docs {
		names[i] = fuzzy.Process(d.Name)
		ids[i] = d.ID
	}

	hits, err := Rank(ctx, query, names, ids, limit, s.cfg.ScoreThreshold)
	if err != nil {
		metrics.ObserveSearch(targetCategories, pathCancelled, time.Since(start))
		return nil, fmt.Errorf("rank %s: %w", kind.Collection(), err)
	}

	out := make([]category.Document, len(hits))
	for i, h := range hits {
		out[i] = l.Docs[h.Index]
	}
	metrics.ObserveSearch(targetCategories, pathFuzzy, time.Since(start))
	return out, nil
}

// TopCategories returns the n most referenced categories of kind. Without a
// counter index the bounded scan is sorted in memory.
func (s *Service) TopCategories(ctx context.Context, kind course.Kind, n int) ([]category.Document, error) {
	n = s.limit(n)

	l, err := s.categories.List(ctx, kind, s.cfg.CategoryScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
	}
	s.warnSkipped(kind, l.Skipped)

	docs := l.Docs
	if !l.Ordered {
		docs = slices.Clone(docs)
		slices.SortStableFunc(docs, func(a, b category.Document) int {
			if a.CoursesCounter != b.CoursesCounter {
				if a.CoursesCounter > b.CoursesCounter {
					return -1
				}
				return 1
			}
			return strings.Compare(a.ID, b.ID)
		})
	}
	if len(docs) > n {
		docs = docs[:n]
	}
	return docs, nil
}

// GetCategory returns one category document.
func (s *Service) GetCategory(ctx context.Context, kind course.Kind, id string) (category.Document, error) {
	doc, err := s.categories.Get(ctx, kind, id)
	if err != nil {
		return category.Document{}, fmt.Errorf("get %s/%s: %w", kind.Collection(), id, err)
	}
	return doc, nil
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(n, s.cfg.MaxLimit)
}

// processed returns the processed names of snap, computing them once per version.
func (s *Service) processed(snap *catalog.Snapshot) *processedNames {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.names != nil && s.names.version == snap.Version && len(s.names.names) == snap.Len() {
		return s.names
	}

	pn := &processedNames{
		version: snap.Version,
		names:   make([]string, snap.Len()),
		ids:     make([]string, snap.Len()),
	}
	for i, c := range snap.Courses {
		pn.names[i] = fuzzy.Process(c.Name())
		pn.ids[i] = c.ID()
	}
	s.names = pn
	return pn
}

func (s *Service) warnSkipped(kind course.Kind, n int) {
	if n > 0 {
		s.logger.Warn("Skipped malformed category documents",
			zap.String("kind", string(kind)),
			zap.Int("count", n),
		)
	}
}
