// Package threatdb queries the remote threat database for known-malware
// verdicts by package name and version.
package threatdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Lookup failures are distinct: the aggregator treats both as a
// degraded signal, never as evidence in either direction.
var (
	ErrTimeout     = errors.New("threat database lookup timed out")
	ErrUnavailable = errors.New("threat database unavailable")
)

const defaultRetryWait = 500 * time.Millisecond

// Client is an HTTP client for the threat database
type Client struct {
	baseURL    string
	deviceID   string
	apiKey     string
	httpClient *http.Client
	retryWait  time.Duration
}

// LookupResult is the threat database's answer for one package version
type LookupResult struct {
	Matched  bool   `json:"matched"`
	Severity int    `json:"severity,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// NewClient creates a threat database client with a bounded per-request
// timeout. The device id and optional api key are sent as query params.
func NewClient(baseURL, deviceID, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		deviceID:   deviceID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retryWait:  defaultRetryWait,
	}
}

// Lookup queries the database for a package version. A failed request
// is retried once after a short backoff before the error is surfaced.
func (c *Client) Lookup(ctx context.Context, name, version, registry string) (*LookupResult, error) {
	result, err := c.lookupOnce(ctx, name, version, registry)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ErrTimeout
	}

	select {
	case <-time.After(c.retryWait):
	case <-ctx.Done():
		return nil, ErrTimeout
	}

	return c.lookupOnce(ctx, name, version, registry)
}

func (c *Client) lookupOnce(ctx context.Context, name, version, registry string) (*LookupResult, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("version", version)
	q.Set("registry", registry)
	q.Set("device", c.deviceID)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/v1/lookup?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrUnavailable, err)
	}
	return &result, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
