// Package upstream wraps the outbound HTTP call to the Dialect G API,
// generalizing the teacher SDK's internal HTTP client (formerly
// pkg/internal/http) down to exactly what the proxy controller needs: POST
// a prebuilt URL with a JSON body, either buffering the reply or handing
// back the live body for streaming.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the request ceiling the proxy controller applies to
// every upstream call (§4.I: "POST upstream with a 60s ceiling").
const DefaultTimeout = 60 * time.Second

// DefaultClient is a shared HTTP client sized for a proxy workload:
// moderate connection reuse, no response-level timeout (callers supply
// their own context deadline so streaming responses aren't cut short).
var DefaultClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Response is a buffered, non-streaming upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client issues upstream requests.
type Client struct {
	http *http.Client
}

// New builds a Client. A nil http.Client selects DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultClient
	}
	return &Client{http: httpClient}
}

// Post sends body as JSON to url and buffers the full reply. Callers apply
// their own timeout via ctx (§4.I's 60s ceiling).
func (c *Client) Post(ctx context.Context, url string, body interface{}) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// PostStream sends body as JSON to url and returns the live response for
// the caller to stream from. On a non-2xx status the body is buffered and
// returned as an error instead, so a caller never has to special-case a
// half-open error body.
func (c *Client) PostStream(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: errBody}
	}

	return resp, nil
}

// StatusError carries a non-2xx upstream reply so callers can map its
// status to a Dialect A error kind without re-reading a closed body.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}
