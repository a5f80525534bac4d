// Package journal is a thin client for the journal-entry REST API.
//
// The client never retries: each method issues exactly one request and
// returns exactly one Response, whatever happened on the wire.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
)

// Doer executes HTTP requests. *http.Client and *pester.Client both
// satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxBodyBytes caps how much of a response body is kept.
const maxBodyBytes = 4 << 20

// NewPesterClient returns a pester client configured for a single
// attempt per request with the given timeout.
func NewPesterClient(timeout time.Duration, logger *slog.Logger) *pester.Client {
	client := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	client.Concurrency = 1
	client.MaxRetries = 1
	client.Backoff = pester.DefaultBackoff
	client.LogHook = func(e pester.ErrEntry) {
		logger.Debug("request attempt failed",
			"method", e.Method,
			"url", e.URL,
			"attempt", e.Attempt,
			"error", e.Err,
		)
	}
	return client
}

// Client issues journal API requests against a base URL.
type Client struct {
	baseURL string
	doer    Doer
}

// NewClient creates a client. baseURL must not end in a slash.
func NewClient(baseURL string, doer Doer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
	}
}

// Health issues GET /healthz.
func (c *Client) Health(ctx context.Context) *Response {
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}

// Create issues POST /entries/.
func (c *Client) Create(ctx context.Context, p Payload) *Response {
	return c.do(ctx, http.MethodPost, "/entries/", p)
}

// Get issues GET /entries/{id}.
func (c *Client) Get(ctx context.Context, id EntryID) *Response {
	return c.do(ctx, http.MethodGet, entryPath(id), nil)
}

// Update issues PUT /entries/{id}.
func (c *Client) Update(ctx context.Context, id EntryID, p Payload) *Response {
	return c.do(ctx, http.MethodPut, entryPath(id), p)
}

// List issues GET /entries/.
func (c *Client) List(ctx context.Context) *Response {
	return c.do(ctx, http.MethodGet, "/entries/", nil)
}

// Delete issues DELETE /entries/{id}.
func (c *Client) Delete(ctx context.Context, id EntryID) *Response {
	return c.do(ctx, http.MethodDelete, entryPath(id), nil)
}

func entryPath(id EntryID) string {
	return "/entries/" + url.PathEscape(string(id))
}

func (c *Client) do(ctx context.Context, method, path string, body any) *Response {
	resp := &Response{Method: method, URL: c.baseURL + path}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			resp.Err = fmt.Errorf("encode request body: %w", err)
			return resp
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, resp.URL, reader)
	if err != nil {
		resp.Err = fmt.Errorf("build request: %w", err)
		return resp
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.doer.Do(req)
	if err != nil {
		resp.Duration = time.Since(start)
		resp.Err = err
		return resp
	}
	defer httpResp.Body.Close()

	resp.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	resp.Duration = time.Since(start)
	resp.Status = httpResp.StatusCode
	if err != nil {
		resp.Err = fmt.Errorf("read response body: %w", err)
	}
	return resp
}
