// Package query builds the source search request from configuration.
package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// SearchRequest is the body sent with the initial cursor search.
type SearchRequest struct {
	// Field is the split field the request filters and sorts on.
	Field string
	// Query is the query clause (match_all or bool/must/range).
	Query map[string]any
	// Sort is the sort clause; documents are read in this order.
	Sort []map[string]any
}

// Body renders the request as JSON.
func (r SearchRequest) Body() ([]byte, error) {
	body := map[string]any{"query": r.Query}
	if len(r.Sort) > 0 {
		body["sort"] = r.Sort
	}
	return json.Marshal(body)
}

// Range returns the range parameters for the split field, or nil when unfiltered.
func (r SearchRequest) Range() map[string]any {
	b, ok := r.Query["bool"].(map[string]any)
	if !ok {
		return nil
	}
	must, ok := b["must"].([]map[string]any)
	if !ok || len(must) == 0 {
		return nil
	}
	rng, ok := must[0]["range"].(map[string]any)
	if !ok {
		return nil
	}
	params, _ := rng[r.Field].(map[string]any)
	return params
}

// Order returns the requested sort order.
func (r SearchRequest) Order() config.SortOrder {
	for _, s := range r.Sort {
		if o, ok := s[r.Field].(map[string]any); ok {
			if order, ok := o["order"].(string); ok {
				return config.SortOrder(order)
			}
		}
	}
	return config.SortAsc
}

// Build constructs the search request. A nil filter matches everything
// sorted ascending by field. Otherwise each non-empty bound becomes a range
// clause encoded in the filter's ISO format, sorted in its order.
func Build(filter *config.QuerySpec, field string) (SearchRequest, error) {
	req := SearchRequest{
		Field: field,
		Query: map[string]any{"match_all": map[string]any{}},
		Sort:  []map[string]any{{field: map[string]any{"order": string(config.SortAsc)}}},
	}
	if filter == nil {
		return req, nil
	}

	order := filter.SortOrder
	if order == "" {
		order = config.SortAsc
	}
	req.Sort = []map[string]any{{field: map[string]any{"order": string(order)}}}

	if filter.GTE == "" && filter.LTE == "" {
		return req, nil
	}

	format := filter.ISOFormat
	if format == "" {
		format = config.IsoStrictDateOptionalTime
	}
	params := map[string]any{"format": string(format)}
	if filter.GTE != "" {
		v, err := encodeBound(filter.GTE, format, false)
		if err != nil {
			return SearchRequest{}, err
		}
		params["gte"] = v
	}
	if filter.LTE != "" {
		v, err := encodeBound(filter.LTE, format, true)
		if err != nil {
			return SearchRequest{}, err
		}
		params["lte"] = v
	}

	req.Query = map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"range": map[string]any{field: params}},
			},
		},
	}
	return req, nil
}

// encodeBound converts a YYYY-MM-DD bound. Epoch upper bounds are moved to the
// last second (or millisecond) of the day so the whole day is included.
func encodeBound(date string, format config.IsoFormat, upper bool) (any, error) {
	if format == config.IsoStrictDateOptionalTime {
		if _, err := time.Parse(config.DateLayout, date); err != nil {
			return nil, serrors.ConfigError(fmt.Sprintf("bound %q must be in YYYY-MM-DD format", date), err)
		}
		return date, nil
	}

	day, err := time.ParseInLocation(config.DateLayout, date, time.UTC)
	if err != nil {
		return nil, serrors.ConfigError(fmt.Sprintf("bound %q must be in YYYY-MM-DD format", date), err)
	}
	if upper {
		next := day.AddDate(0, 0, 1)
		if format == config.IsoEpochMillis {
			return next.UnixMilli() - 1, nil
		}
		return next.Unix() - 1, nil
	}
	if format == config.IsoEpochMillis {
		return day.UnixMilli(), nil
	}
	return day.Unix(), nil
}
