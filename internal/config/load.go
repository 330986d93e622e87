package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "SPLITDEX"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.ini"

// Load reads, overrides from the environment, and validates the config file at path.
// Any failure is a ConfigError naming the first offending field.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, serrors.New(serrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file '%s' not found", path), err).
			WithSuggestion("pass --config, or run 'splitdex config init' to create config.ini")
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, serrors.New(serrors.ErrCodeConfigParse,
			fmt.Sprintf("failed to parse config file %s: %v", path, err), err)
	}
	return fromViper(v)
}

// LoadReader is Load for an in-memory INI document.
func LoadReader(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, serrors.New(serrors.ErrCodeConfigParse,
			fmt.Sprintf("failed to parse config: %v", err), err)
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("ini")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// fromViper pulls raw strings for every known key and validates them.
func fromViper(v *viper.Viper) (*Config, error) {
	raw := make(map[string]string, len(knownKeys))
	present := make(map[string]bool, len(knownKeys))
	for _, key := range knownKeys {
		if v.IsSet(key) {
			present[key] = true
		}
		raw[key] = strings.TrimSpace(v.GetString(key))
	}
	return parse(raw, present)
}

// Config keys as section.key.
const (
	keyURL       = "elastic.es_url"
	keyUsername  = "elastic.es_username"
	keyPassword  = "elastic.es_password"
	keyTimeout   = "elastic.es_timeout"
	keyIndexName = "elastic.es_index_name"
	keyField     = "elastic.es_field"

	keyBatchSize        = "engine.batch_size"
	keyMaxRetry         = "engine.max_retry_connection"
	keyFormatDate       = "engine.format_date"
	keyScrollSize       = "engine.scroll_size"
	keyScrollKeepAlive  = "engine.scroll_keepalive"
	keyWorkers          = "engine.workers"
	keyInvalidPolicy    = "engine.invalid_policy"
	keyInvalidSuffix    = "engine.invalid_suffix"
	keyTimezone         = "engine.timezone"
	keyMaxBulkPerSecond = "engine.max_bulk_per_second"
	keyBackoffInitial   = "engine.backoff_initial"
	keyBackoffMax       = "engine.backoff_max"

	keyUsedQuery = "query.used_query"
	keyGTE       = "query.gte"
	keyLTE       = "query.lte"
	keyISOFormat = "query.iso_format"
	keySortOrder = "query.sort_order"
)

var knownKeys = []string{
	keyURL, keyUsername, keyPassword, keyTimeout, keyIndexName, keyField,
	keyBatchSize, keyMaxRetry, keyFormatDate, keyScrollSize, keyScrollKeepAlive, keyWorkers,
	keyInvalidPolicy, keyInvalidSuffix, keyTimezone, keyMaxBulkPerSecond, keyBackoffInitial, keyBackoffMax,
	keyUsedQuery, keyGTE, keyLTE, keyISOFormat, keySortOrder,
}

// requiredKeys must be present (in the file or the environment).
var requiredKeys = []string{keyURL, keyTimeout, keyIndexName, keyField}
