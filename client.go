package coursedex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/blob"
	"github.com/kailas-cloud/coursedex/internal/db"
	dbMemory "github.com/kailas-cloud/coursedex/internal/db/memory"
	dbRedis "github.com/kailas-cloud/coursedex/internal/db/redis"
	dbValkey "github.com/kailas-cloud/coursedex/internal/db/valkey"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
	catalogrepo "github.com/kailas-cloud/coursedex/internal/repository/catalog"
	categoryrepo "github.com/kailas-cloud/coursedex/internal/repository/category"
	counteruc "github.com/kailas-cloud/coursedex/internal/usecase/counter"
	searchuc "github.com/kailas-cloud/coursedex/internal/usecase/search"
)

const (
	defaultPrefix      = "coursedex:"
	defaultCatalogName = "all_courses_data.json"
)

// errReportFailed marks lifecycle operations whose report has failed kinds.
var errReportFailed = errors.New("counter update dropped")

// Client is the coursedex SDK entry point.
type Client struct {
	store    db.Store
	catalog  *catalogrepo.Cache
	search   *searchuc.Service
	counters *counteruc.Service
	obs      *observer
}

// New creates a Client. A store option (WithValkey, WithRedis or WithMemory)
// is required. Without a catalog option every course search returns nothing.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		prefix:      defaultPrefix,
		refresh:     string(catalogrepo.RefreshStartup),
		catalogName: defaultCatalogName,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.driver == "" {
		return nil, fmt.Errorf("coursedex: store option is required (WithValkey, WithRedis or WithMemory)")
	}
	refresh, err := catalogrepo.ParseRefresh(cfg.refresh)
	if err != nil {
		return nil, fmt.Errorf("coursedex: %w", err)
	}

	logger := cfg.zapLogger
	if logger == nil {
		logger = zap.NewNop()
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{store: store, obs: obs}

	categories := categoryrepo.New(store, cfg.prefix)
	if err := categories.EnsureIndexes(ctx); err != nil {
		logger.Warn("Category indexes unavailable, falling back to scans", zap.Error(err))
	}

	c.catalog = catalogrepo.NewCache(
		catalogrepo.NewLoader(cfg.catalogSource(), cfg.catalogName, logger),
		catalogrepo.CacheConfig{Refresh: refresh, MaxStaleness: cfg.maxStaleness},
		logger,
	)
	if err := c.catalog.Warm(ctx); err != nil {
		logger.Warn("Catalog warm-up failed", zap.Error(err))
	}

	c.search = searchuc.New(c.catalog, categories, searchuc.DefaultConfig(), logger)
	c.counters = counteruc.New(categories, counteruc.Config{
		MaxAttempts: cfg.maxAttempts,
		Backoff:     cfg.backoff,
		DedupTTL:    cfg.dedupTTL,
	}, logger)

	return c, nil
}

func openStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return dbMemory.NewStore(), nil
	case "valkey":
		s, err := dbValkey.NewStore(dbValkey.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("coursedex: connect valkey: %w", err)
		}
		return s, nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("coursedex: connect redis: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("coursedex: unknown driver %q", cfg.driver)
	}
}

// Close releases the store connection.
func (c *Client) Close() {
	c.store.Close()
}

// Ping checks the store connection.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.store.Ping(ctx)
	c.obs.observe("ping", start, err)
	return err
}

// ReloadCatalog reloads the catalog snapshot now, regardless of the refresh mode.
// On failure the previous snapshot stays in use.
func (c *Client) ReloadCatalog(ctx context.Context) error {
	start := time.Now()
	err := c.catalog.Warm(ctx)
	c.obs.observe("reload_catalog", start, err)
	return err
}

// SearchCourses returns up to limit catalog courses whose name or id fuzzily
// matches term. A blank term returns the first limit courses in catalog order.
func (c *Client) SearchCourses(ctx context.Context, term string, limit int) ([]CourseHit, error) {
	start := time.Now()
	hits, err := c.search.Search(ctx, term, limit)
	c.obs.observe("search_courses", start, err, "results", len(hits))
	if err != nil {
		return nil, fmt.Errorf("coursedex: search courses: %w", err)
	}
	out := make([]CourseHit, len(hits))
	for i, h := range hits {
		out[i] = courseHitFromDomain(h)
	}
	return out, nil
}

// SearchCategories returns up to limit categories of kind whose name or id
// fuzzily matches term.
func (c *Client) SearchCategories(ctx context.Context, kind Kind, term string, limit int) ([]Category, error) {
	start := time.Now()
	docs, err := c.search.SearchCategories(ctx, kind, term, limit)
	c.obs.observe("search_categories", start, err, "kind", string(kind), "results", len(docs))
	if err != nil {
		return nil, fmt.Errorf("coursedex: search %s: %w", kind.Collection(), err)
	}
	return categoriesFromDomain(docs), nil
}

// TopCategories returns the n categories of kind with the most courses.
func (c *Client) TopCategories(ctx context.Context, kind Kind, n int) ([]Category, error) {
	start := time.Now()
	docs, err := c.search.TopCategories(ctx, kind, n)
	c.obs.observe("top_categories", start, err, "kind", string(kind))
	if err != nil {
		return nil, fmt.Errorf("coursedex: top %s: %w", kind.Collection(), err)
	}
	return categoriesFromDomain(docs), nil
}

// GetCategory returns one category document. Missing documents yield ErrNotFound.
func (c *Client) GetCategory(ctx context.Context, kind Kind, id string) (Category, error) {
	start := time.Now()
	doc, err := c.search.GetCategory(ctx, kind, id)
	c.obs.observe("get_category", start, err, "kind", string(kind))
	if err != nil {
		return Category{}, fmt.Errorf("coursedex: get %s/%s: %w", kind, id, err)
	}
	return Category(doc), nil
}

// OnCourseCreated counts a new course in the category of every reference it has.
// The error is non-nil only when the course itself cannot be decoded;
// per-kind failures are reported in the Report.
func (c *Client) OnCourseCreated(ctx context.Context, eventID string, crs Course) (Report, error) {
	start := time.Now()
	after, err := crs.toDomain()
	if err != nil {
		c.obs.observe("course_created", start, err)
		return Report{}, err
	}
	r := c.counters.OnCreated(ctx, eventID, after)
	c.observeReport("course_created", start, r)
	return r, nil
}

// OnCourseUpdated moves the course between categories of every kind whose reference changed.
func (c *Client) OnCourseUpdated(ctx context.Context, eventID string, before, after Course) (Report, error) {
	start := time.Now()
	b, err := before.toDomain()
	if err != nil {
		c.obs.observe("course_updated", start, err)
		return Report{}, err
	}
	a, err := after.toDomain()
	if err != nil {
		c.obs.observe("course_updated", start, err)
		return Report{}, err
	}
	r := c.counters.OnUpdated(ctx, eventID, b, a)
	c.observeReport("course_updated", start, r)
	return r, nil
}

// OnCourseDeleted uncounts the course from the category of every reference it had.
func (c *Client) OnCourseDeleted(ctx context.Context, eventID string, crs Course) (Report, error) {
	start := time.Now()
	before, err := crs.toDomain()
	if err != nil {
		c.obs.observe("course_deleted", start, err)
		return Report{}, err
	}
	r := c.counters.OnDeleted(ctx, eventID, before)
	c.observeReport("course_deleted", start, r)
	return r, nil
}

func (c *Client) observeReport(op string, start time.Time, r event.Report) {
	var err error
	if r.Failed() {
		err = fmt.Errorf("%w: %s", errReportFailed, joinKinds(r.FailedKinds()))
	}
	c.obs.observe(op, start, err, "event_id", r.EventID, "course_id", r.CourseID)
}

func joinKinds(kinds []course.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// catalogSource returns the configured source or an empty in-memory one.
func (c *clientConfig) catalogSource() blob.Source {
	if c.catalogSrc == nil {
		return blob.NewMemory()
	}
	return c.catalogSrc
}
