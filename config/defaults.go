// Package config provides configuration defaults for nodepulse.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultMaxBodyBytes limits the size of a pushed sample batch.
	// Override via config: server.max_body_bytes
	DefaultMaxBodyBytes = 4 * 1024 * 1024

	// DefaultRequestTimeout bounds one ingestion request end to end.
	// Override via config: server.request_timeout
	DefaultRequestTimeout = 10 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests may drain on stop.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultSeriesLimit caps points returned per field by the chart endpoint.
	// Override per request: ?limit=N
	DefaultSeriesLimit = 360

	// DefaultRejectLimit is how many unprovisioned pushes one identity may
	// make within DefaultRejectWindow before it is answered 429 without a
	// store lookup.
	// Override via config: server.reject_limit (0 disables)
	DefaultRejectLimit = 30

	// DefaultRejectWindow is the window for counting rejected pushes.
	// Override via config: server.reject_window
	DefaultRejectWindow = time.Minute
)

// =============================================================================
// Cache Store (Redis) Defaults
// =============================================================================

const (
	// DefaultRedisAddr is the Redis endpoint.
	// Override via config: cache.addr
	DefaultRedisAddr = "127.0.0.1:6379"

	// DefaultRedisDialTimeout is the connect timeout.
	// Override via config: cache.dial_timeout
	DefaultRedisDialTimeout = 5 * time.Second

	// DefaultRedisReadTimeout / DefaultRedisWriteTimeout bound single commands.
	// Override via config: cache.read_timeout, cache.write_timeout
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second

	// DefaultRedisPoolSize is the connection pool size.
	// Override via config: cache.pool_size
	DefaultRedisPoolSize = 20

	// DefaultRedisPoolTimeout is how long a caller waits for a pooled
	// connection before the call fails.
	// Override via config: cache.pool_timeout
	DefaultRedisPoolTimeout = 4 * time.Second
)

// =============================================================================
// Config Store (DuckDB) Defaults
// =============================================================================

const (
	// DefaultMetastoreDSN is the DuckDB database file holding monitor configs.
	// Override via config: metastore.dsn
	DefaultMetastoreDSN = "nodepulse.duckdb"

	// DefaultMetastoreQueryTimeout bounds one provisioning lookup.
	// Override via config: metastore.query_timeout
	DefaultMetastoreQueryTimeout = 5 * time.Second
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultSampleInterval is the agent push cadence the ring capacity is
	// sized against.
	// Override via config: ingestion.sample_interval
	DefaultSampleInterval = 10 * time.Second

	// DefaultWriteConcurrency bounds concurrent ring writes per event.
	// Override via config: ingestion.write_concurrency
	DefaultWriteConcurrency = 16
)

// =============================================================================
// Snapshot Defaults
// =============================================================================

const (
	// DefaultSnapshotCompression is the overview codec ("gzip" or "zstd").
	// Override via config: snapshot.compression
	DefaultSnapshotCompression = "gzip"
)
