// Package client talks to a running gateway. The engine shim and the CLI
// emit commands use it to post check events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/engine"
	"ozzus/check-dispatcher/internal/repository"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	user       string
	token      string
}

// NewClient builds a client for baseURL. Basic auth is sent only when token
// is set.
func NewClient(baseURL, user, token string) (*Client, error) {
	normalizedURL, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: normalizedURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		user:  user,
		token: token,
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("gateway base URL is required")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid gateway base URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid gateway base URL: %s", raw)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return strings.TrimSuffix(parsed.String(), "/"), nil
}

func (c *Client) ProcessEvent(ctx context.Context, ev engine.ProcessEvent) (domain.InterceptResponse, error) {
	return c.post(ctx, "/v1/events/process", ev)
}

func (c *Client) HostCheck(ctx context.Context, ev engine.HostCheckEvent) (domain.InterceptResponse, error) {
	return c.post(ctx, "/v1/checks/host", ev)
}

func (c *Client) ServiceCheck(ctx context.Context, ev engine.ServiceCheckEvent) (domain.InterceptResponse, error) {
	return c.post(ctx, "/v1/checks/service", ev)
}

func (c *Client) EventHandler(ctx context.Context, ev engine.EventHandlerEvent) (domain.InterceptResponse, error) {
	return c.post(ctx, "/v1/eventhandlers", ev)
}

func (c *Client) Results(ctx context.Context, filter repository.ResultFilter) ([]domain.CheckResult, error) {
	q := url.Values{}
	if filter.HostName != "" {
		q.Set("host_name", filter.HostName)
	}
	if filter.ServiceDescription != "" {
		q.Set("service_description", filter.ServiceDescription)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Since != nil {
		q.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}

	path := "/v1/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("create results request: %w", err)
	}

	var payload struct {
		Results []domain.CheckResult `json:"results"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

func (c *Client) Health(ctx context.Context) (domain.HealthResponse, error) {
	var out domain.HealthResponse

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return out, fmt.Errorf("create health request: %w", err)
	}

	err = c.do(req, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body any) (domain.InterceptResponse, error) {
	var out domain.InterceptResponse

	b, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(b))
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	err = c.do(req, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.SetBasicAuth(c.user, c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			host := req.URL.Hostname()
			return fmt.Errorf("execute request: network error contacting %s: %w", host, err)
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if len(b) == 0 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
