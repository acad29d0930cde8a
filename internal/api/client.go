package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a running daemon over its HTTP API using basic auth.
type Client struct {
	baseURL string
	user    string
	pass    string
	client  HTTPDoer
}

// NewClient builds a client against the given bind address. The address may
// be a bare host:port or a full http URL.
func NewClient(address, user, pass string) *Client {
	base := strings.TrimRight(strings.TrimSpace(address), "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		user:    user,
		pass:    pass,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPDoer overrides the transport (tests).
func (c *Client) SetHTTPDoer(doer HTTPDoer) {
	if doer != nil {
		c.client = doer
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("daemon rejected credentials (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status fetches the daemon runtime snapshot.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Usage fetches the provider usage snapshot.
func (c *Client) Usage(ctx context.Context) (*UsageResponse, error) {
	var usage UsageResponse
	if err := c.do(ctx, http.MethodGet, "/api/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// ListOptions filters and pages a request listing.
type ListOptions struct {
	SearchQuery string
	OrderBy     string
	Ascending   bool
	Page        int
	PageSize    int
}

// ListRequests fetches one page of requests.
func (c *Client) ListRequests(ctx context.Context, opts ListOptions) (*RequestListResponse, error) {
	query := url.Values{}
	if opts.SearchQuery != "" {
		query.Set("search", opts.SearchQuery)
	}
	if opts.OrderBy != "" {
		query.Set("orderBy", opts.OrderBy)
	}
	if opts.Ascending {
		query.Set("ascending", "true")
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	path := "/api/requests"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var list RequestListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateRequest enqueues a translation request.
func (c *Client) CreateRequest(ctx context.Context, in CreateRequestInput) (*CreateRequestResponse, error) {
	var created CreateRequestResponse
	if err := c.do(ctx, http.MethodPost, "/api/requests", in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetRequest fetches one request.
func (c *Client) GetRequest(ctx context.Context, id int64) (*Request, error) {
	var resp RequestResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/requests/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Request, nil
}

// RequestLogs fetches a request's audit trail.
func (c *Client) RequestLogs(ctx context.Context, id int64) ([]RequestLogEntry, error) {
	var resp RequestLogsResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/requests/%d/logs", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// CancelRequest cancels a pending or running request.
func (c *Client) CancelRequest(ctx context.Context, id int64) (*Request, error) {
	var resp RequestResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/requests/%d/cancel", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Request, nil
}

// RetryRequest reactivates a finished request.
func (c *Client) RetryRequest(ctx context.Context, id int64) (*Request, error) {
	var resp RequestResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/requests/%d/retry", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Request, nil
}

// RemoveRequest deletes a non-running request.
func (c *Client) RemoveRequest(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/requests/%d", id), nil, nil)
}

// Reenqueue returns stuck requests to the pending state.
func (c *Client) Reenqueue(ctx context.Context, includeInProgress bool) (*ReenqueueResponse, error) {
	var resp ReenqueueResponse
	in := ReenqueueInput{IncludeInProgress: includeInProgress}
	if err := c.do(ctx, http.MethodPost, "/api/requests/reenqueue", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dedupe removes duplicate historical requests.
func (c *Client) Dedupe(ctx context.Context) (*DedupeResponse, error) {
	var resp DedupeResponse
	if err := c.do(ctx, http.MethodPost, "/api/requests/dedupe", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ActiveCount fetches the active request count.
func (c *Client) ActiveCount(ctx context.Context) (int, error) {
	var resp ActiveCountResponse
	if err := c.do(ctx, http.MethodGet, "/api/requests/active-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ListMedia fetches the library listing, optionally filtered by kind.
func (c *Client) ListMedia(ctx context.Context, kind string) ([]MediaItem, error) {
	path := "/api/media"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var resp MediaListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// SetExclusion toggles a media row's automation exclusion.
func (c *Client) SetExclusion(ctx context.Context, kind string, id int64, excluded bool) error {
	path := fmt.Sprintf("/api/media/%s/%d/exclude", url.PathEscape(kind), id)
	return c.do(ctx, http.MethodPost, path, MediaToggleInput{Value: excluded}, nil)
}

// SetPriority toggles a media row's priority flag.
func (c *Client) SetPriority(ctx context.Context, kind string, id int64, priority bool) error {
	path := fmt.Sprintf("/api/media/%s/%d/priority", url.PathEscape(kind), id)
	return c.do(ctx, http.MethodPost, path, MediaToggleInput{Value: priority}, nil)
}

// SetAgeThreshold sets or clears a media row's age threshold override.
func (c *Client) SetAgeThreshold(ctx context.Context, kind string, id int64, hours *int) error {
	path := fmt.Sprintf("/api/media/%s/%d/threshold", url.PathEscape(kind), id)
	return c.do(ctx, http.MethodPost, path, MediaThresholdInput{Hours: hours}, nil)
}

// CheckIntegrity validates one source and target sidecar pair.
func (c *Client) CheckIntegrity(ctx context.Context, sourcePath, targetPath string) (*IntegrityCheckResponse, error) {
	var resp IntegrityCheckResponse
	in := IntegrityCheckInput{SourcePath: sourcePath, TargetPath: targetPath}
	if err := c.do(ctx, http.MethodPost, "/api/integrity/check", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SweepIntegrity runs the bulk integrity sweep across completed media.
func (c *Client) SweepIntegrity(ctx context.Context) (*IntegritySweepResponse, error) {
	var resp IntegritySweepResponse
	if err := c.do(ctx, http.MethodPost, "/api/integrity/sweep", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logs fetches a page of the daemon log buffer.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, follow bool) (*LogStreamResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		query.Set("follow", "1")
	}
	path := "/api/logs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp LogStreamResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settings fetches every runtime setting with its effective value.
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	var values map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// UpdateSettings applies the given key/value pairs.
func (c *Client) UpdateSettings(ctx context.Context, values map[string]string) error {
	return c.do(ctx, http.MethodPut, "/api/settings", values, nil)
}
