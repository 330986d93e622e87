package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

const errTypeAlreadyExists = "resource_already_exists_exception"

// ElasticOptions configures the Elasticsearch adapter.
type ElasticOptions struct {
	URL      string
	Username string
	Password string

	// UserAgent is sent on every request when set.
	UserAgent string

	// Transport overrides the HTTP transport. Tests point it at httptest servers.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Elastic implements SearchEngine against an Elasticsearch cluster using
// scroll cursors and the bulk API.
type Elastic struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

// Compile-time interface check.
var _ SearchEngine = (*Elastic)(nil)

// NewElastic creates an adapter. The client's own retries are disabled;
// callers apply the configured retry policy.
func NewElastic(opts ElasticOptions) (*Elastic, error) {
	var header http.Header
	if opts.UserAgent != "" {
		header = http.Header{"User-Agent": []string{opts.UserAgent}}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{opts.URL},
		Username:     opts.Username,
		Password:     opts.Password,
		Header:       header,
		Transport:    opts.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, serrors.ConfigError("cannot create Elasticsearch client", err).
			WithDetail("url", opts.URL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Elastic{client: client, logger: logger}, nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Index  string         `json:"_index"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Index  string `json:"_index"`
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Search opens a scroll over p.Index.
func (e *Elastic) Search(ctx context.Context, p SearchParams) (Page, error) {
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(p.Index),
		e.client.Search.WithBody(bytes.NewReader(p.Body)),
		e.client.Search.WithSize(p.Size),
		e.client.Search.WithScroll(p.KeepAlive),
	)
	if err != nil {
		return Page{}, transportError(ctx, "search", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return Page{}, responseError("search", res)
	}
	return decodePage(res.Body)
}

// Advance continues the scroll identified by cursor.
func (e *Elastic) Advance(ctx context.Context, cursor string, keepAlive time.Duration) (Page, error) {
	res, err := e.client.Scroll(
		e.client.Scroll.WithContext(ctx),
		e.client.Scroll.WithScrollID(cursor),
		e.client.Scroll.WithScroll(keepAlive),
	)
	if err != nil {
		return Page{}, transportError(ctx, "scroll", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return Page{}, responseError("scroll", res)
	}
	return decodePage(res.Body)
}

// ClearCursor releases the scroll context.
func (e *Elastic) ClearCursor(ctx context.Context, cursor string) error {
	if cursor == "" {
		return nil
	}
	res, err := e.client.ClearScroll(
		e.client.ClearScroll.WithContext(ctx),
		e.client.ClearScroll.WithScrollID(cursor),
	)
	if err != nil {
		return transportError(ctx, "clear scroll", err)
	}
	defer closeBody(res)

	// 404 means the scroll already expired.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("clear scroll", res)
	}
	return nil
}

// IndexExists checks for the index with a HEAD request.
func (e *Elastic) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.client.Indices.Exists([]string{name}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportError(ctx, "index exists", err)
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError("index exists", res)
	}
}

// CreateIndex creates name with default settings.
func (e *Elastic) CreateIndex(ctx context.Context, name string) error {
	res, err := e.client.Indices.Create(name, e.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return transportError(ctx, "create index", err)
	}
	defer closeBody(res)

	if !res.IsError() {
		e.logger.Debug("index created", slog.String("index", name))
		return nil
	}

	body, _ := io.ReadAll(res.Body)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Type == errTypeAlreadyExists {
		return nil
	}
	return statusError("create index", res.StatusCode, string(body))
}

// Bulk indexes items in one request and reports per-item outcomes.
func (e *Elastic) Bulk(ctx context.Context, items []BulkItem) (BulkResult, error) {
	if len(items) == 0 {
		return BulkResult{}, nil
	}

	body, err := encodeBulk(items)
	if err != nil {
		return BulkResult{}, serrors.InternalError("cannot encode bulk request", err)
	}

	res, err := e.client.Bulk(bytes.NewReader(body), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return BulkResult{}, transportError(ctx, "bulk", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return BulkResult{}, responseError("bulk", res)
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return BulkResult{}, serrors.TransientError("cannot decode bulk response", err)
	}

	result := BulkResult{Items: make([]BulkItemResult, 0, len(br.Items))}
	for _, entry := range br.Items {
		for _, item := range entry {
			r := BulkItemResult{Index: item.Index, ID: item.ID, Status: item.Status}
			if item.Error != nil {
				r.Error = item.Error.Type + ": " + item.Error.Reason
			}
			result.Items = append(result.Items, r)
		}
	}
	return result, nil
}

// Ping checks that the cluster answers.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return transportError(ctx, "ping", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return statusError("ping", res.StatusCode, "")
	}
	return nil
}

// encodeBulk renders items as bulk NDJSON with explicit _index and _id.
func encodeBulk(items []BulkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		meta := map[string]any{"index": map[string]string{"_index": item.Index, "_id": item.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		if err := enc.Encode(item.Source); err != nil {
			return nil, fmt.Errorf("document %s: %w", item.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func decodePage(r io.Reader) (Page, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var sr searchResponse
	if err := dec.Decode(&sr); err != nil {
		return Page{}, serrors.TransientError("cannot decode search response", err)
	}

	page := Page{Cursor: sr.ScrollID, Docs: make([]Document, 0, len(sr.Hits.Hits))}
	for _, hit := range sr.Hits.Hits {
		page.Docs = append(page.Docs, Document{ID: hit.ID, Index: hit.Index, Source: hit.Source})
	}
	page.Done = len(page.Docs) == 0
	return page, nil
}

func transportError(ctx context.Context, op string, err error) *serrors.SplitError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return serrors.TimeoutError(op+" timed out", err).WithDetail("operation", op)
	}
	return serrors.TransientError(op+" failed", err).WithDetail("operation", op)
}

func responseError(op string, res *esapi.Response) *serrors.SplitError {
	body, _ := io.ReadAll(res.Body)
	return statusError(op, res.StatusCode, string(body))
}

func statusError(op string, status int, body string) *serrors.SplitError {
	e := serrors.New(serrors.ErrCodeServiceError, fmt.Sprintf("%s returned status %d", op, status), nil).
		WithDetail("operation", op).
		WithDetail("status", strconv.Itoa(status))
	if body != "" {
		e = e.WithDetail("response", truncate(body, 512))
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
}
