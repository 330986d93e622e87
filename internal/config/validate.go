package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Aman-CERP/splitdex/internal/bucket"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// DateLayout is the layout of query bounds.
const DateLayout = "2006-01-02"

// validator accumulates every field error so operators can fix a file in one pass.
type validator struct {
	raw   map[string]string
	errs  *multierror.Error
	first *serrors.SplitError
}

func (v *validator) fail(key, format string, args ...any) {
	err := serrors.ConfigError(fmt.Sprintf(format, args...), nil).WithDetail("field", key)
	if v.first == nil {
		v.first = err
	}
	v.errs = multierror.Append(v.errs, err)
}

func (v *validator) intInRange(key string, def, min, max int) int {
	s := v.raw[key]
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		v.fail(key, "%s must be an integer", leaf(key))
		return def
	}
	if n < min {
		v.fail(key, "%s must be greater than equal to %d", leaf(key), min)
	} else if n > max {
		v.fail(key, "%s must be less than equal to %d", leaf(key), max)
	}
	return n
}

func (v *validator) duration(key string, def time.Duration) time.Duration {
	s := v.raw[key]
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		v.fail(key, "%s must be a positive duration such as 500ms or 5m", leaf(key))
		return def
	}
	return d
}

func (v *validator) oneOf(key, def string, allowed ...string) string {
	s := strings.ToLower(v.raw[key])
	if s == "" {
		return def
	}
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	v.fail(key, "invalid %s. Must be one of: %s", leaf(key), strings.Join(allowed, ", "))
	return def
}

func (v *validator) date(key string) (string, time.Time) {
	s := v.raw[key]
	if s == "" {
		return "", time.Time{}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		v.fail(key, "%s must be in YYYY-MM-DD format", leaf(key))
		return "", time.Time{}
	}
	return s, t
}

func leaf(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}

// parse builds a Config from raw section.key strings.
func parse(raw map[string]string, present map[string]bool) (*Config, error) {
	v := &validator{raw: raw}

	for _, key := range requiredKeys {
		if !present[key] || raw[key] == "" {
			v.fail(key, "missing required field: %s", leaf(key))
		}
	}

	cfg := &Config{}

	// [elastic]
	cfg.Elastic.URL = raw[keyURL]
	if cfg.Elastic.URL != "" {
		validateURL(v, cfg.Elastic.URL)
	}
	cfg.Elastic.Username = raw[keyUsername]
	cfg.Elastic.Password = raw[keyPassword]
	if raw[keyTimeout] != "" {
		cfg.Elastic.Timeout = time.Duration(v.intInRange(keyTimeout, 0, 1, 86400)) * time.Second
	} else {
		cfg.Elastic.Timeout = DefaultTimeout
	}
	cfg.Elastic.IndexName = raw[keyIndexName]
	if cfg.Elastic.IndexName != "" {
		if reason := indexNameProblem(cfg.Elastic.IndexName); reason != "" {
			v.fail(keyIndexName, "es_index_name %s", reason)
		}
	}
	cfg.Elastic.Field = raw[keyField]

	// [engine]
	cfg.Engine.BatchSize = v.intInRange(keyBatchSize, DefaultBatchSize, 1, 1000)
	cfg.Engine.MaxRetryConnection = v.intInRange(keyMaxRetry, DefaultMaxRetryConnection, 1, 10)
	cfg.Engine.FormatDate = bucket.DefaultFormat
	if s := raw[keyFormatDate]; s != "" {
		f, err := bucket.ParseFormat(s)
		if err != nil {
			names := make([]string, 0, 4)
			for _, known := range bucket.Formats() {
				names = append(names, string(known))
			}
			v.fail(keyFormatDate, "invalid format_date. Must be one of: %s", strings.Join(names, ", "))
		} else {
			cfg.Engine.FormatDate = f
		}
	}
	cfg.Engine.ScrollSize = v.intInRange(keyScrollSize, DefaultScrollSize, 1, 10000)
	cfg.Engine.ScrollKeepAlive = v.duration(keyScrollKeepAlive, DefaultScrollKeepAlive)
	cfg.Engine.Workers = v.intInRange(keyWorkers, DefaultWorkers, 1, 32)
	cfg.Engine.InvalidPolicy = InvalidPolicy(v.oneOf(keyInvalidPolicy, string(InvalidFallback),
		string(InvalidFallback), string(InvalidFail)))
	cfg.Engine.InvalidSuffix = DefaultInvalidSuffix
	if s := raw[keyInvalidSuffix]; s != "" {
		if reason := indexNameProblem(s); reason != "" {
			v.fail(keyInvalidSuffix, "invalid_suffix %s", reason)
		} else {
			cfg.Engine.InvalidSuffix = s
		}
	}
	cfg.Engine.Timezone = DefaultTimezone
	if s := raw[keyTimezone]; s != "" {
		if _, err := time.LoadLocation(s); err != nil {
			v.fail(keyTimezone, "unknown timezone %q", s)
		} else {
			cfg.Engine.Timezone = s
		}
	}
	if s := raw[keyMaxBulkPerSecond]; s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			v.fail(keyMaxBulkPerSecond, "max_bulk_per_second must be a non-negative number")
		} else {
			cfg.Engine.MaxBulkPerSecond = f
		}
	}
	cfg.Engine.BackoffInitial = v.duration(keyBackoffInitial, DefaultBackoffInitial)
	cfg.Engine.BackoffMax = v.duration(keyBackoffMax, DefaultBackoffMax)
	if cfg.Engine.BackoffMax < cfg.Engine.BackoffInitial {
		v.fail(keyBackoffMax, "backoff_max must be greater than equal to backoff_initial")
	}

	// [query]
	used := v.oneOf(keyUsedQuery, "no", "yes", "no")
	gte, gteTime := v.date(keyGTE)
	lte, lteTime := v.date(keyLTE)
	if gte != "" && lte != "" && gteTime.After(lteTime) {
		v.fail(keyGTE, "gte must not be after lte")
	}
	iso := IsoFormat(v.oneOf(keyISOFormat, string(IsoStrictDateOptionalTime),
		string(IsoEpochMillis), string(IsoEpochSecond), string(IsoStrictDateOptionalTime)))
	sortOrder := SortOrder(v.oneOf(keySortOrder, string(SortAsc), string(SortAsc), string(SortDesc)))
	if used == "yes" {
		cfg.Query = &QuerySpec{GTE: gte, LTE: lte, ISOFormat: iso, SortOrder: sortOrder}
	}

	if v.errs != nil {
		err := serrors.New(serrors.ErrCodeConfigInvalid, v.first.Message, v.errs.ErrorOrNil()).
			WithDetail("field", v.first.Details["field"])
		if n := len(v.errs.Errors); n > 1 {
			err.WithDetail("problems", strconv.Itoa(n))
		}
		return nil, err
	}
	return cfg, nil
}

func validateURL(v *validator, raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		v.fail(keyURL, "invalid URL format: %v", err)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.fail(keyURL, "URL must start with http:// or https://")
		return
	}
	if u.Hostname() == "" {
		v.fail(keyURL, "URL must include a hostname")
	}
}

// indexNameProblem mirrors the cluster's index naming rules.
func indexNameProblem(name string) string {
	if name != strings.ToLower(name) {
		return "must be lowercase"
	}
	if strings.ContainsAny(name, `\/*?"<>| ,#:`) {
		return `must not contain \ / * ? " < > | space , # :`
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "_") || strings.HasPrefix(name, "+") {
		return "must not start with -, _ or +"
	}
	return ""
}
