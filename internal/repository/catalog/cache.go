package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

// Refresh selects when the cached snapshot is reloaded.
type Refresh string

const (
	// RefreshStartup loads once and keeps the snapshot for the process lifetime.
	RefreshStartup Refresh = "startup"
	// RefreshRequest reloads on every Snapshot call.
	RefreshRequest Refresh = "request"
	// RefreshInterval reloads when the snapshot is older than MaxStaleness.
	RefreshInterval Refresh = "interval"
)

// ParseRefresh validates a refresh mode name.
func ParseRefresh(s string) (Refresh, error) {
	switch r := Refresh(s); r {
	case RefreshStartup, RefreshRequest, RefreshInterval:
		return r, nil
	default:
		return "", fmt.Errorf("unknown catalog refresh mode %q", s)
	}
}

// retryAfter spaces reload attempts in startup mode while no load has succeeded yet.
const retryAfter = 30 * time.Second

// Snapshot is an immutable view of the catalog. Version increases on every
// successful reload so consumers can key derived data on it.
type Snapshot struct {
	Courses  []course.Summary
	Version  uint64
	LoadedAt time.Time
}

// Len returns the number of courses.
func (s *Snapshot) Len() int { return len(s.Courses) }

// loader is the consumer interface for snapshot loading.
type loader interface {
	Load(ctx context.Context) (Catalog, error)
}

// CacheConfig configures a Cache. Metrics are optional.
type CacheConfig struct {
	Refresh      Refresh
	MaxStaleness time.Duration
	Reloads      *prometheus.CounterVec // label "result": ok/missing/error
	Courses      prometheus.Gauge
}

// Cache serves catalog snapshots. Concurrent reloads are collapsed into one
// load; a failed reload keeps the previous snapshot.
type Cache struct {
	loader loader
	cfg    CacheConfig
	logger *zap.Logger
	now    func() time.Time
	group  singleflight.Group

	mu        sync.RWMutex
	snap      *Snapshot
	loaded    bool      // at least one load succeeded
	checkedAt time.Time // last load attempt
	lastErr   error
}

// NewCache creates a cache in front of l. Nothing is loaded until the first
// Snapshot or Warm call.
func NewCache(l loader, cfg CacheConfig, logger *zap.Logger) *Cache {
	if cfg.Refresh == "" {
		cfg.Refresh = RefreshStartup
	}
	return &Cache{
		loader: l,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		snap:   &Snapshot{},
	}
}

// Warm performs the initial load and returns its error, if any. The cache
// stays usable (empty) when it fails.
func (c *Cache) Warm(ctx context.Context) error {
	return c.reload(ctx, true)
}

// Snapshot returns the current snapshot, reloading first when the refresh
// policy asks for it. It never returns nil; load failures are logged and the
// previous (possibly empty) snapshot is served.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
	if c.needsReload() {
		_ = c.reload(ctx, false)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// LastError returns the error of the most recent load attempt.
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Cache) needsReload() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.checkedAt.IsZero() {
		return true
	}
	age := c.now().Sub(c.checkedAt)
	switch c.cfg.Refresh {
	case RefreshRequest:
		return true
	case RefreshInterval:
		return age >= c.cfg.MaxStaleness
	default:
		return !c.loaded && age >= retryAfter
	}
}

func (c *Cache) reload(ctx context.Context, force bool) error {
	_, err, _ := c.group.Do("catalog", func() (any, error) {
		// Another caller may have finished a load since needsReload was checked.
		if !force && !c.needsReload() {
			return nil, nil
		}

		// Detached so a cancelled caller does not fail the shared load.
		cat, err := c.loader.Load(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		c.checkedAt = c.now()
		c.lastErr = err

		if err != nil {
			c.incReload("error")
			c.logger.Error("Catalog reload failed, keeping previous snapshot",
				zap.Uint64("version", c.snap.Version),
				zap.Int("courses", c.snap.Len()),
				zap.Error(err),
			)
			return nil, err
		}

		if cat.Missing {
			c.incReload("missing")
		} else {
			c.incReload("ok")
		}
		c.loaded = true
		c.snap = &Snapshot{
			Courses:  cat.Courses,
			Version:  c.snap.Version + 1,
			LoadedAt: c.checkedAt,
		}
		if c.cfg.Courses != nil {
			c.cfg.Courses.Set(float64(len(cat.Courses)))
		}
		c.logger.Debug("Catalog reloaded",
			zap.Uint64("version", c.snap.Version),
			zap.Int("courses", len(cat.Courses)),
			zap.Int("skipped", cat.Skipped),
		)
		return nil, nil
	})
	return err
}

func (c *Cache) incReload(result string) {
	if c.cfg.Reloads != nil {
		c.cfg.Reloads.WithLabelValues(result).Inc()
	}
}
