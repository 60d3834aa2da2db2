package vistore

import (
	"log/slog"
	"time"

	"github.com/i2y/vistore/hooks"
	"github.com/i2y/vistore/metrics"
)

// Option configures a Store.
type Option func(*storeConfig)

// storeConfig holds the configuration for a Store.
type storeConfig struct {
	queryTimeout time.Duration
	locking      bool

	hooks    hooks.StoreHooks
	recorder metrics.Recorder
	logger   *slog.Logger
}

// defaultConfig returns the default configuration.
func defaultConfig() *storeConfig {
	return &storeConfig{
		queryTimeout: 10 * time.Second,
		locking:      false,
		hooks:        &hooks.NoOpHooks{},
		recorder:     metrics.NoopRecorder{},
		logger:       slog.Default(),
	}
}

// WithQueryTimeout bounds how long each operation waits for the database.
// Default: 10 seconds. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *storeConfig) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithLocking selects optimistic locking for Update. When disabled (the
// default), Update overwrites the payload and the version is left alone.
func WithLocking(enabled bool) Option {
	return func(c *storeConfig) {
		c.locking = enabled
	}
}

// WithHooks sets the store lifecycle hooks.
func WithHooks(h hooks.StoreHooks) Option {
	return func(c *storeConfig) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *storeConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// DatabaseOption configures OpenDatabase.
type DatabaseOption func(*databaseConfig)

type databaseConfig struct {
	autoMigrate  bool
	maxOpenConns int
	logger       *slog.Logger
}

func defaultDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		autoMigrate: true,
		logger:      slog.Default(),
	}
}

// WithAutoMigrate controls whether the bundled schema migrations run when the
// database is opened. Default is true. Disable it to manage the schema with
// dbmate or `vistore schema`.
func WithAutoMigrate(enabled bool) DatabaseOption {
	return func(c *databaseConfig) {
		c.autoMigrate = enabled
	}
}

// WithMaxOpenConns overrides the driver's connection pool size.
func WithMaxOpenConns(n int) DatabaseOption {
	return func(c *databaseConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithDatabaseLogger sets the logger used while migrating.
func WithDatabaseLogger(l *slog.Logger) DatabaseOption {
	return func(c *databaseConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
