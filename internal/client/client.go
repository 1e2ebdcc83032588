package client

import (
	"bytes"
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

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	httperr "github.com/auditor-dev/auditor/internal/core/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// Config holds the settings needed to construct a Client.
type Config struct {
	// Address and Port locate the accounting server. Ignored when
	// ConnectionString is set.
	Address string
	Port    int

	// ConnectionString is a full base URL (e.g. "http://auditor:8000")
	// and takes precedence over Address/Port.
	ConnectionString string

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts for network errors and
	// 5xx responses, with exponential backoff. The default is zero: the
	// client does not retry.
	MaxRetries uint64

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with the configured timeout is used.
	HTTPClient *http.Client
}

// Client is an HTTP client for the accounting API.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries uint64
}

// Build creates a Client from the configuration.
// Returns an error when neither a connection string nor an address/port
// pair is given.
func (cfg Config) Build() (*Client, error) {
	baseURL := cfg.ConnectionString
	if baseURL == "" {
		if cfg.Address == "" || cfg.Port <= 0 {
			return nil, fmt.Errorf("auditor: either ConnectionString or Address and Port are required")
		}
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Address, cfg.Port)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("auditor: invalid connection string: %w", err)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		client:     httpClient,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Add creates a new record and returns it as stored by the server.
func (c *Client) Add(ctx context.Context, add v1.RecordAdd) (*v1.Record, error) {
	var rec v1.Record
	if err := c.do(ctx, http.MethodPost, "/record", add, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update closes or refines an existing record and returns its new state.
func (c *Client) Update(ctx context.Context, upd v1.RecordUpdate) (*v1.Record, error) {
	var rec v1.Record
	if err := c.do(ctx, http.MethodPut, "/record", upd, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// QueryOptions are the filters and ordering for GetAll. The zero value
// lists every record in the server's default order.
type QueryOptions struct {
	StartTimeGTE *time.Time
	StartTimeLTE *time.Time
	StopTimeGTE  *time.Time
	StopTimeLTE  *time.Time
	RuntimeGTE   *int64
	RuntimeLTE   *int64
	Meta         map[v1.Name][]v1.Name
	IDPrefix     string
	SortBy       string
	Order        string
}

// values translates the options into the server's query-string syntax.
func (o QueryOptions) values() url.Values {
	params := url.Values{}
	setTime := func(key string, t *time.Time) {
		if t != nil {
			params.Set(key, t.UTC().Format(time.RFC3339Nano))
		}
	}
	setTime("start_time_gte", o.StartTimeGTE)
	setTime("start_time_lte", o.StartTimeLTE)
	setTime("stop_time_gte", o.StopTimeGTE)
	setTime("stop_time_lte", o.StopTimeLTE)
	if o.RuntimeGTE != nil {
		params.Set("runtime_gte", strconv.FormatInt(*o.RuntimeGTE, 10))
	}
	if o.RuntimeLTE != nil {
		params.Set("runtime_lte", strconv.FormatInt(*o.RuntimeLTE, 10))
	}
	for key, vals := range o.Meta {
		for _, val := range vals {
			params.Add("meta."+key.String(), val.String())
		}
	}
	if o.IDPrefix != "" {
		params.Set("record_id_prefix", o.IDPrefix)
	}
	if o.SortBy != "" {
		params.Set("sort_by", o.SortBy)
	}
	if o.Order != "" {
		params.Set("order", o.Order)
	}
	return params
}

// GetAll lists records matching the given options.
func (c *Client) GetAll(ctx context.Context, opts QueryOptions) ([]v1.Record, error) {
	path := "/records"
	if params := opts.values(); len(params) > 0 {
		path += "?" + params.Encode()
	}

	var records []v1.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetOne fetches a single record by id.
func (c *Client) GetOne(ctx context.Context, id v1.Name) (*v1.Record, error) {
	var rec v1.Record
	if err := c.do(ctx, http.MethodGet, "/record/"+url.PathEscape(id.String()), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// HealthCheck verifies that the server and its backend are reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health_check", nil, nil)
}

// do performs one API call, optionally retrying network errors and 5xx
// responses with exponential backoff. Client errors (4xx) are permanent.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	attempt := func() error {
		return c.doOnce(ctx, method, path, body, out)
	}

	if c.maxRetries == 0 {
		return attempt()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := attempt()
		if err == nil {
			return nil
		}
		if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("auditor: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("auditor: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auditor: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("auditor: failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("auditor: failed to decode response body: %w", err)
		}
	}
	return nil
}

// parseAPIError decodes the server's structured error body; a body that
// does not parse still yields an APIError with the raw message.
func parseAPIError(status int, body []byte) *APIError {
	var parsed httperr.ErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return &APIError{StatusCode: status, Kind: parsed.Error, Message: parsed.Message}
	}
	return &APIError{
		StatusCode: status,
		Kind:       httperr.KindInternal,
		Message:    strings.TrimSpace(string(body)),
	}
}

func asAPIError(err error) (*APIError, bool) {
	var e *APIError
	ok := errors.As(err, &e)
	return e, ok
}
