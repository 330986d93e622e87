// Package config loads and validates the splitdex configuration file.
//
// The file is INI with three sections, [elastic], [engine] and [query].
// Every key can be overridden from the environment as
// SPLITDEX_<SECTION>_<KEY>, e.g. SPLITDEX_ENGINE_BATCH_SIZE.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/Aman-CERP/splitdex/internal/bucket"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// IsoFormat is the encoding used for range bounds in the source query.
type IsoFormat string

const (
	IsoEpochSecond            IsoFormat = "epoch_second"
	IsoEpochMillis            IsoFormat = "epoch_millis"
	IsoStrictDateOptionalTime IsoFormat = "strict_date_optional_time"
)

// SortOrder is the order documents are read from the source index.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// InvalidPolicy decides what happens to documents without a usable date.
type InvalidPolicy string

const (
	// InvalidFallback writes them to {index}-{invalid_suffix}.
	InvalidFallback InvalidPolicy = "fallback"
	// InvalidFail counts them as failed without writing.
	InvalidFail InvalidPolicy = "fail"
)

// Config is the validated, immutable run configuration.
type Config struct {
	Elastic ElasticConfig
	Engine  EngineConfig
	// Query is nil unless used_query = yes.
	Query *QuerySpec
}

// ElasticConfig holds the source cluster connection settings.
type ElasticConfig struct {
	URL      string
	Username string
	Password string
	// Timeout bounds every network call (1s-86400s).
	Timeout   time.Duration
	IndexName string
	// Field is the dotted path of the split field.
	Field string
}

// EngineConfig holds pipeline tuning.
type EngineConfig struct {
	BatchSize          int
	MaxRetryConnection int
	FormatDate         bucket.Format

	ScrollSize       int
	ScrollKeepAlive  time.Duration
	Workers          int
	InvalidPolicy    InvalidPolicy
	InvalidSuffix    string
	Timezone         string
	MaxBulkPerSecond float64
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// QuerySpec filters and orders the source scan.
type QuerySpec struct {
	// GTE and LTE are inclusive YYYY-MM-DD bounds; empty means unbounded.
	GTE       string
	LTE       string
	ISOFormat IsoFormat
	SortOrder SortOrder
}

// Defaults.
const (
	DefaultTimeout            = 60 * time.Second
	DefaultBatchSize          = 10
	DefaultMaxRetryConnection = 3
	DefaultScrollSize         = 1000
	DefaultScrollKeepAlive    = 5 * time.Minute
	DefaultWorkers            = 1
	DefaultInvalidSuffix      = "invalid"
	DefaultTimezone           = "UTC"
	DefaultBackoffInitial     = 1 * time.Second
	DefaultBackoffMax         = 30 * time.Second
)

// DestinationIndex returns the index name for a bucket key.
// The invalid bucket maps to the fallback index.
func (c *Config) DestinationIndex(key bucket.Key) string {
	if !key.IsValid() {
		return fmt.Sprintf("%s-%s", c.Elastic.IndexName, c.Engine.InvalidSuffix)
	}
	return fmt.Sprintf("%s-%s", c.Elastic.IndexName, key)
}

// Location returns the zone used to render bucket keys.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Retry returns the retry policy shared by reads and writes:
// max_retry_connection attempts, exponential backoff, each attempt bounded by the elastic timeout.
func (c *Config) Retry() serrors.RetryConfig {
	return serrors.RetryConfig{
		MaxAttempts:    c.Engine.MaxRetryConnection,
		InitialDelay:   c.Engine.BackoffInitial,
		MaxDelay:       c.Engine.BackoffMax,
		Multiplier:     2.0,
		AttemptTimeout: c.Elastic.Timeout,
	}
}
