package coursedex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/blob"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "valkey", "redis" or "memory"
	addrs    []string
	password string
	prefix   string

	catalogSrc   CatalogSource
	catalogName  string
	refresh      string
	maxStaleness time.Duration

	maxAttempts int
	backoff     time.Duration
	dedupTTL    time.Duration

	logger     *slog.Logger
	zapLogger  *zap.Logger
	metricsReg prometheus.Registerer
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemory keeps category documents in process. Useful for tests and demos.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
		c.addrs = nil
	})
}

// WithKeyPrefix sets the storage key prefix. Default: "coursedex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.prefix = prefix
	})
}

// WithCatalogSource reads the catalog snapshot called name from src.
// Compressed snapshots are recognised by extension (.gz, .zst, .lz4, .br).
func WithCatalogSource(src CatalogSource, name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogSrc = src
		c.catalogName = name
	})
}

// WithCatalogDir reads the catalog snapshot from a local directory.
func WithCatalogDir(dir, name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogSrc = blob.NewLocal(dir)
		c.catalogName = name
	})
}

// WithCatalogData serves a fixed in-memory catalog ({"courses": [...]}).
func WithCatalogData(data []byte) Option {
	return optionFunc(func(c *clientConfig) {
		src := blob.NewMemory()
		src.Put(defaultCatalogName, data)
		c.catalogSrc = src
		c.catalogName = defaultCatalogName
	})
}

// WithCatalogRefresh selects when the catalog is reloaded: "startup"
// (default), "request" or "interval". maxStaleness applies to "interval".
func WithCatalogRefresh(mode string, maxStaleness time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.refresh = mode
		c.maxStaleness = maxStaleness
	})
}

// WithMaxAttempts bounds transaction attempts per category kind (1..5).
// Default: 5.
func WithMaxAttempts(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxAttempts = n
	})
}

// WithRetryBackoff sets the base of the exponential retry backoff. Default: 20ms.
func WithRetryBackoff(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.backoff = d
	})
}

// WithDedupTTL remembers applied event ids for ttl so redelivered events
// are not counted twice. Events without an id are never deduplicated.
func WithDedupTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.dedupTTL = ttl
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithZapLogger routes logs of the catalog and counter internals
// (skipped entries, dropped updates) to l.
func WithZapLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.zapLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
