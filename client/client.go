// Package client provides a Go client for the cadence admin HTTP API.
//
// Usage:
//
//	c := client.New("http://cadence.internal:8080")
//
//	jobIDs, err := c.Trigger(ctx, "trial-nurture", "lead-42", map[string]string{
//	    "product": "Acme CRM",
//	})
//
//	st, err := c.Status(ctx)
package client

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

	"github.com/outreachlab/cadence/engine"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// Client talks to a remote cadence instance over its admin API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cadence/client: %d %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Health checks whether the server and its store are reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Status returns the server's queue snapshot.
func (c *Client) Status(ctx context.Context) (engine.Status, error) {
	var st engine.Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Trigger starts a sequence for an entity and returns the scheduled job
// IDs.
func (c *Client) Trigger(ctx context.Context, sequenceID, entityID string, bindings map[string]string) ([]id.JobID, error) {
	body := map[string]any{
		"entity_id": entityID,
		"bindings":  bindings,
	}
	var resp struct {
		JobIDs []id.JobID `json:"job_ids"`
	}
	err := c.do(ctx, http.MethodPost,
		"/v1/sequences/"+url.PathEscape(sequenceID)+"/trigger", body, &resp)
	return resp.JobIDs, err
}

// Jobs lists jobs matching the given options.
func (c *Client) Jobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	q := url.Values{}
	if opts.State != "" {
		q.Set("state", string(opts.State))
	}
	if opts.SequenceID != "" {
		q.Set("sequence", opts.SequenceID)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var jobs []*job.Job
	err := c.do(ctx, http.MethodGet, path, nil, &jobs)
	return jobs, err
}

// Job retrieves a single job by ID.
func (c *Client) Job(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID.String(), nil, &j)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Sweep asks the server to dispatch everything currently due and
// returns how many jobs were processed.
func (c *Client) Sweep(ctx context.Context) (int, error) {
	var resp struct {
		Processed int `json:"processed"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/sweep", nil, &resp)
	return resp.Processed, err
}

// PurgeSent deletes delivered jobs on the server.
func (c *Client) PurgeSent(ctx context.Context) (int64, error) {
	var resp struct {
		Purged int64 `json:"purged"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/jobs/purge-sent", nil, &resp)
	return resp.Purged, err
}

// Sequences lists the names of the sequences the server knows.
func (c *Client) Sequences(ctx context.Context) ([]string, error) {
	var summaries []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sequences", nil, &summaries); err != nil {
		return nil, err
	}
	names := make([]string, len(summaries))
	for i, s := range summaries {
		names[i] = s.ID
	}
	return names, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cadence/client: marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("cadence/client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("cadence/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cadence/client: decode response: %w", err)
	}
	return nil
}
