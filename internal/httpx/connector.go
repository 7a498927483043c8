// Package httpx is the outbound HTTP client shared by the search providers
// and URL ingestion.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type Connector struct {
	baseURL     string
	httpClient  *http.Client
	maxBodySize int64
}

func NewConnector(baseURL string, options ...Option) *Connector {
	cfg := defaultClientConfig()
	for _, opt := range options {
		opt(cfg)
	}
	return &Connector{
		baseURL:     baseURL,
		httpClient:  newClient(cfg),
		maxBodySize: cfg.maxBodySize,
	}
}

type RequestOpt func(*requestConfig)

type requestConfig struct {
	headers     map[string]string
	query       url.Values
	overrideURL string
}

func WithHeader(key, value string) RequestOpt {
	return func(c *requestConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

func WithQuery(key, value string) RequestOpt {
	return func(c *requestConfig) {
		if c.query == nil {
			c.query = url.Values{}
		}
		c.query.Add(key, value)
	}
}

func WithURL(u string) RequestOpt {
	return func(c *requestConfig) {
		c.overrideURL = u
	}
}

func (c *Connector) buildURL(endpoint string, cfg *requestConfig) (string, error) {
	raw := c.baseURL + endpoint
	if cfg.overrideURL != "" {
		raw = cfg.overrideURL
	}
	if len(cfg.query) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, vs := range cfg.query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DoRequest sends reqBody as JSON (when non-nil) and decodes a 2xx JSON
// response into respBody (when non-nil).
func (c *Connector) DoRequest(ctx context.Context, method, endpoint string, reqBody, respBody any, opts ...RequestOpt) error {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
		ctx = context.WithValue(ctx, payloadContextKey{}, jsonData)
		opts = append([]RequestOpt{WithHeader("Content-Type", "application/json")}, opts...)
	}
	opts = append([]RequestOpt{WithHeader("Accept", "application/json")}, opts...)

	bodyBytes, _, err := c.do(ctx, method, endpoint, bodyReader, opts...)
	if err != nil {
		return err
	}

	if respBody != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Fetch performs a GET and returns the raw body and its content type.
func (c *Connector) Fetch(ctx context.Context, rawURL string, opts ...RequestOpt) ([]byte, string, error) {
	return c.do(ctx, http.MethodGet, "", nil, append(opts, WithURL(rawURL))...)
}

func (c *Connector) do(ctx context.Context, method, endpoint string, body io.Reader, opts ...RequestOpt) ([]byte, string, error) {
	cfg := &requestConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	target, err := c.buildURL(endpoint, cfg)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	for key, value := range cfg.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(bodyBytes),
		}
	}
	return bodyBytes, resp.Header.Get("Content-Type"), nil
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NetworkError represents a network-level error (connection, timeout, etc.)
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
