package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverPostgres = "postgres"
	DriverDynamo   = "dynamodb"
	DriverMemory   = "memory"
)

// Catalog sources.
const (
	SourceLocal  = "local"
	SourceS3     = "s3"
	SourceMinIO  = "minio"
	SourceMemory = "memory"
)

// Config holds the coursedex API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Search   SearchConfig   `yaml:"search"`
	Counters CountersConfig `yaml:"counters"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Keys protect the lifecycle hooks.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, postgres, dynamodb, memory (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"`
	Table            string   `yaml:"table"`
	Region           string   `yaml:"region"`
	Endpoint         string   `yaml:"endpoint"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// CatalogConfig locates the course catalog snapshot and controls reloads.
type CatalogConfig struct {
	Source          string `yaml:"source"` // local, s3, minio, memory (default: local)
	Path            string `yaml:"path"`   // directory for the local source
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Key             string `yaml:"key"` // blob name, compression picked by extension
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Refresh         string `yaml:"refresh"` // startup, request, interval (default: startup)
	MaxStalenessSec int    `yaml:"max_staleness_sec"`
}

// SearchConfig holds search limits and public rate limiting.
type SearchConfig struct {
	DefaultLimit      int     `yaml:"default_limit"`
	MaxLimit          int     `yaml:"max_limit"`
	ScoreThreshold    int     `yaml:"score_threshold"`
	CategoryScanLimit int     `yaml:"category_scan_limit"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps"` // 0 disables rate limiting
	RateLimitBurst    int     `yaml:"rate_limit_burst"`
}

// CountersConfig holds counter maintenance settings.
type CountersConfig struct {
	MaxAttempts       int  `yaml:"max_attempts"`
	BackoffMS         int  `yaml:"backoff_ms"`
	DedupTTLSec       int  `yaml:"dedup_ttl_sec"` // 0 disables redelivery dedup
	DeadLetterTTLSec  int  `yaml:"dead_letter_ttl_sec"`
	DisableDeadLetter bool `yaml:"disable_dead_letter"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "coursedex:"
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = SourceLocal
	}
	if c.Catalog.Key == "" {
		c.Catalog.Key = "all_courses_data.json"
	}
	if c.Catalog.Refresh == "" {
		c.Catalog.Refresh = "startup"
	}
	if c.Catalog.MaxStalenessSec <= 0 {
		c.Catalog.MaxStalenessSec = 300
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.ScoreThreshold == 0 {
		c.Search.ScoreThreshold = 50
	}
	if c.Search.CategoryScanLimit <= 0 {
		c.Search.CategoryScanLimit = 500
	}
	if c.Search.RateLimitRPS > 0 && c.Search.RateLimitBurst <= 0 {
		c.Search.RateLimitBurst = int(c.Search.RateLimitRPS) + 1
	}
	if c.Counters.MaxAttempts == 0 {
		c.Counters.MaxAttempts = 5
	}
	if c.Counters.BackoffMS <= 0 {
		c.Counters.BackoffMS = 20
	}
	if c.Counters.DeadLetterTTLSec <= 0 {
		c.Counters.DeadLetterTTLSec = 7 * 24 * 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Catalog.validate(); err != nil {
		return err
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 100 {
		return fmt.Errorf("search.score_threshold must be between 0 and 100, got %d", c.Search.ScoreThreshold)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.RateLimitRPS < 0 {
		return fmt.Errorf("search.rate_limit_rps must not be negative")
	}
	if c.Counters.MaxAttempts < 1 || c.Counters.MaxAttempts > 5 {
		return fmt.Errorf("counters.max_attempts must be between 1 and 5, got %d", c.Counters.MaxAttempts)
	}
	if c.Counters.DedupTTLSec < 0 {
		return fmt.Errorf("counters.dedup_ttl_sec must not be negative")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverRedis, DriverValkey:
		if len(d.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", d.Driver)
		}
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", d.Driver)
		}
	case DriverDynamo:
		if d.Table == "" {
			return fmt.Errorf("database.table is required for driver %q", d.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not supported", d.Driver)
	}
	return nil
}

func (c *CatalogConfig) validate() error {
	switch c.Source {
	case SourceLocal:
		if c.Path == "" {
			return fmt.Errorf("catalog.path is required for source %q", c.Source)
		}
	case SourceS3:
		if c.Bucket == "" {
			return fmt.Errorf("catalog.bucket is required for source %q", c.Source)
		}
	case SourceMinIO:
		if c.Bucket == "" || c.Endpoint == "" {
			return fmt.Errorf("catalog.bucket and catalog.endpoint are required for source %q", c.Source)
		}
	case SourceMemory:
	default:
		return fmt.Errorf("catalog.source %q is not supported", c.Source)
	}
	switch c.Refresh {
	case "startup", "request", "interval":
	default:
		return fmt.Errorf("catalog.refresh must be \"startup\", \"request\" or \"interval\", got %q", c.Refresh)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
