package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	initialBackoff     = 500 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

// Client wraps outbound HTTP calls to one external service with a per-call
// timeout, retry with capped exponential backoff, and a short-TTL cache for
// GET responses.
type Client struct {
	baseURL     string
	apiKey      string
	authHeader  string
	authQuery   string
	http        *http.Client
	cache       *responseCache
	maxAttempts int
	logger      *zap.Logger

	// sleep is injectable for tests so retry tests don't wait for real backoff.
	sleep func(context.Context, time.Duration) error
}

// sleepContext waits out the backoff, or returns early when ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithAuthHeader sends the API key in the named request header
// (e.g. "X-Api-Key" for Radarr and Sonarr).
func WithAuthHeader(name string) Option {
	return func(c *Client) { c.authHeader = name }
}

// WithAuthQuery sends the API key as the named query parameter
// (e.g. "apikey" for Tautulli, "X-Plex-Token" for Plex).
func WithAuthQuery(name string) Option {
	return func(c *Client) { c.authQuery = name }
}

// NewClient creates a Client for the given service configuration.
// It returns nil when the service is unconfigured; callers must treat a nil
// client as "source absent" and degrade gracefully.
func NewClient(cfg ServiceConfig, logger *zap.Logger, opts ...Option) *Client {
	if !cfg.Configured() {
		return nil
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		apiKey:      cfg.ApiKey,
		http:        &http.Client{Transport: transport, Timeout: timeoutDuration},
		cache:       newResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON performs a cached GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.buildURL(path, query)

	body, err := c.cache.getOrFill(u, func() ([]byte, error) {
		return c.doWithRetry(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// Do performs an uncached request with the given method and optional JSON body.
// Writes against the external services are idempotent enough that retrying a
// failed attempt is safe (duplicate deletes resolve to not-found).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) error {
	u := c.buildURL(path, query)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body for %s: %w", path, err)
		}
	}

	_, err := c.doWithRetry(ctx, method, u, payload)
	return err
}

// DoJSON performs an uncached request and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.buildURL(path, query)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body for %s: %w", path, err)
		}
	}

	respBody, err := c.doWithRetry(ctx, method, u, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// ClearCache drops all cached GET responses.
func (c *Client) ClearCache() {
	c.cache.clear()
}

func (c *Client) buildURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if c.authQuery != "" {
		query.Set(c.authQuery, c.apiKey)
	}
	u := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// doWithRetry performs the request with capped exponential backoff. Transient
// failures (connection errors, timeouts, 5xx) are retried up to maxAttempts;
// a 404 maps to ErrNotFound and is never retried.
func (c *Client) doWithRetry(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, retryable, err := c.doOnce(ctx, method, u, payload)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxAttempts {
			c.logger.Warn("Retrying request",
				zap.String("method", method),
				zap.String("url", u),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, u string, payload []byte) (body []byte, retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, false, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection errors and timeouts are transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d from %s", resp.StatusCode, u)
	default:
		return nil, false, fmt.Errorf("status %d from %s", resp.StatusCode, u)
	}
}
