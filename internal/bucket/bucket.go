// Package bucket maps raw split-field values to date bucket keys.
//
// A bucket key is the document's date rendered with one of four fixed
// patterns. Values that cannot be read as a date map to Invalid; callers
// decide what happens to those documents.
package bucket

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// Key is a date-derived partition key.
type Key string

// Invalid is the key for documents whose split-field value is missing or unparseable.
// It can never collide with a rendered date.
const Invalid Key = ""

// IsValid reports whether k is a rendered date.
func (k Key) IsValid() bool {
	return k != Invalid
}

// Format is one of the supported output date patterns.
type Format string

const (
	FormatYearMonth     Format = "YYYYmm"
	FormatYearMonthDay  Format = "YYYYmmdd"
	FormatDayMonthYear  Format = "ddmmYYYY"
	FormatDashedISODate Format = "YYYY-mm-dd"
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatYearMonthDay

var layouts = map[Format]string{
	FormatYearMonth:     "200601",
	FormatYearMonthDay:  "20060102",
	FormatDayMonthYear:  "02012006",
	FormatDashedISODate: "2006-01-02",
}

// Formats lists the supported patterns in display order.
func Formats() []Format {
	return []Format{FormatYearMonth, FormatYearMonthDay, FormatDashedISODate, FormatDayMonthYear}
}

// ParseFormat validates a configured pattern name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimSpace(s))
	if _, ok := layouts[f]; !ok {
		names := make([]string, 0, len(layouts))
		for _, known := range Formats() {
			names = append(names, string(known))
		}
		return "", fmt.Errorf("unsupported date format %q, must be one of: %s", s, strings.Join(names, ", "))
	}
	return f, nil
}

// Layout returns the Go time layout for f.
func (f Format) Layout() string {
	return layouts[f]
}

// millisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is year 5138; 1e11 milliseconds is March 1973.
const millisThreshold = 1e11

// compactDate is checked before epochs so "20240115" is a date, not a second count.
const compactDate = "20060102"

var stringLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Bucket renders value as a bucket key using format in loc.
// Strings, JSON numbers, integers, floats and time.Time are accepted.
// On failure it returns Invalid and a DateParseError.
func Bucket(value any, format Format, loc *time.Location) (Key, error) {
	layout, ok := layouts[format]
	if !ok {
		return Invalid, serrors.DateParseError(fmt.Sprintf("unsupported date format %q", format), nil)
	}
	t, err := ParseTime(value)
	if err != nil {
		return Invalid, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return Key(t.In(loc).Format(layout)), nil
}

// ParseTime converts a raw field value into an instant.
func ParseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, serrors.DateParseError("split field is missing", nil)
	case time.Time:
		return v, nil
	case json.Number:
		return parseNumeric(string(v))
	case string:
		return parseString(v)
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int32:
		return fromEpoch(float64(v))
	case int64:
		return fromEpochInt(v)
	case uint64:
		if v > math.MaxInt64 {
			return time.Time{}, serrors.DateParseError(fmt.Sprintf("epoch %d out of range", v), nil)
		}
		return fromEpochInt(int64(v))
	default:
		return time.Time{}, serrors.DateParseError(fmt.Sprintf("unsupported split field type %T", value), nil)
	}
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, serrors.DateParseError("split field is empty", nil)
	}
	if len(s) == len(compactDate) && allDigits(s) {
		if t, err := time.Parse(compactDate, s); err == nil {
			return t, nil
		}
	}
	if t, err := parseNumeric(s); err == nil {
		return t, nil
	}
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, serrors.DateParseError(fmt.Sprintf("cannot parse %q as a date", s), nil)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseNumeric(s string) (time.Time, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpochInt(i)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, serrors.DateParseError(fmt.Sprintf("cannot parse %q as an epoch", s), err)
	}
	return fromEpoch(f)
}

func fromEpochInt(i int64) (time.Time, error) {
	if i >= millisThreshold || i <= -millisThreshold {
		return time.UnixMilli(i).UTC(), nil
	}
	return time.Unix(i, 0).UTC(), nil
}

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, serrors.DateParseError("epoch is not a finite number", nil)
	}
	if math.Abs(f) >= millisThreshold {
		if math.Abs(f) > math.MaxInt64/2 {
			return time.Time{}, serrors.DateParseError(fmt.Sprintf("epoch %v out of range", f), nil)
		}
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
