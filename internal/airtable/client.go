// Package airtable is a small REST client for the two calls sitesync needs:
// listing a table's records and listing per-record timestamps.
//
// No SDK is used. Requests are plain GETs against /v0/{base}/{table} with
// offset paging, and responses are decoded into types.Record.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/sitesync/pkg/types"
)

// pageSize is the Airtable maximum.
const pageSize = 100

// Client talks to one Airtable base.
type Client struct {
	endpoint       string
	baseID         string
	apiKey         string
	timestampField string
	http           *http.Client
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a Client for cfg. It fails with types.ErrMissingCredentials
// when the API key or base ID is empty; no request is made.
func New(cfg types.AirtableConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = types.DefaultEndpoint
	}
	tsField := cfg.TimestampField
	if tsField == "" {
		tsField = types.DefaultTimestampField
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeout
	}
	c := &Client{
		endpoint:       strings.TrimRight(endpoint, "/"),
		baseID:         cfg.BaseID,
		apiKey:         cfg.APIKey,
		timestampField: tsField,
		http:           &http.Client{Timeout: timeout},
		log:            zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("airtable: %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("airtable: %d %s", e.Status, e.Message)
}

// Unwrap lets callers match every API failure with types.ErrRemoteFetch.
func (e *APIError) Unwrap() error { return types.ErrRemoteFetch }

// wireRecord is a record as returned by the list endpoint.
type wireRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type listResponse struct {
	Records []wireRecord `json:"records"`
	Offset  string       `json:"offset"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ListRecords returns every record of table, or only the records whose IDs
// are listed when ids is non-empty.
func (c *Client) ListRecords(ctx context.Context, table string, ids []string) ([]types.Record, error) {
	q := url.Values{}
	if len(ids) > 0 {
		q.Set("filterByFormula", idFormula(ids))
	}
	wire, err := c.list(ctx, table, q)
	if err != nil {
		return nil, err
	}
	records := make([]types.Record, 0, len(wire))
	for _, w := range wire {
		rec, err := c.toRecord(w)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListStamps returns the ID and last-modified time of every record in
// table. Only the timestamp field is requested, so the payload stays small.
func (c *Client) ListStamps(ctx context.Context, table string) ([]types.Stamp, error) {
	q := url.Values{}
	q.Add("fields[]", c.timestampField)
	wire, err := c.list(ctx, table, q)
	if err != nil {
		return nil, err
	}
	stamps := make([]types.Stamp, 0, len(wire))
	for _, w := range wire {
		rec, err := c.toRecord(w)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		stamps = append(stamps, rec.Stamp())
	}
	return stamps, nil
}

// list pages through /v0/{base}/{table} until no offset is returned.
func (c *Client) list(ctx context.Context, table string, q url.Values) ([]wireRecord, error) {
	var all []wireRecord
	offset := ""
	for page := 0; ; page++ {
		pq := url.Values{}
		for k, v := range q {
			pq[k] = v
		}
		pq.Set("pageSize", strconv.Itoa(pageSize))
		if offset != "" {
			pq.Set("offset", offset)
		}

		var resp listResponse
		if err := c.get(ctx, table, pq, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Records...)
		c.log.Debug("listed page",
			zap.String("table", table),
			zap.Int("page", page),
			zap.Int("records", len(resp.Records)))

		if resp.Offset == "" {
			return all, nil
		}
		offset = resp.Offset
	}
}

func (c *Client) get(ctx context.Context, table string, q url.Values, out any) error {
	u := fmt.Sprintf("%s/v0/%s/%s?%s", c.endpoint, url.PathEscape(c.baseID), url.PathEscape(table), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: table %s: %w", types.ErrRemoteFetch, table, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: reading table %s: %w", types.ErrRemoteFetch, table, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeError(res.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding table %s: %w", types.ErrRemoteFetch, table, err)
	}
	return nil
}

// decodeError turns an error body into an APIError. Airtable sends either
// {"error": "NOT_FOUND"} or {"error": {"type": ..., "message": ...}}.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var er errorResponse
	if json.Unmarshal(body, &er) != nil || len(er.Error) == 0 {
		return apiErr
	}
	var detail errorDetail
	if json.Unmarshal(er.Error, &detail) == nil {
		apiErr.Type = detail.Type
		if detail.Message != "" {
			apiErr.Message = detail.Message
		}
		return apiErr
	}
	var code string
	if json.Unmarshal(er.Error, &code) == nil {
		apiErr.Type = code
	}
	return apiErr
}

// toRecord converts a wire record, reading LastModified from the timestamp
// field and falling back to createdTime.
func (c *Client) toRecord(w wireRecord) (types.Record, error) {
	rec := types.Record{ID: w.ID, Fields: w.Fields}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if w.CreatedTime != "" {
		t, err := time.Parse(time.RFC3339, w.CreatedTime)
		if err != nil {
			return types.Record{}, fmt.Errorf("record %s createdTime: %w", w.ID, err)
		}
		rec.CreatedTime = t.UTC()
	}
	rec.LastModified = rec.CreatedTime
	if v, ok := w.Fields[c.timestampField].(string); ok && v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return types.Record{}, fmt.Errorf("record %s %q: %w", w.ID, c.timestampField, err)
		}
		rec.LastModified = t.UTC()
	}
	return rec, nil
}

// idFormula builds OR(RECORD_ID()='a',RECORD_ID()='b').
func idFormula(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "RECORD_ID()='" + strings.ReplaceAll(id, "'", `\'`) + "'"
	}
	return "OR(" + strings.Join(parts, ",") + ")"
}

// IsAPIError reports whether err carries an APIError with the given status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
