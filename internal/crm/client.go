// Package crm talks to the downstream CRM's REST API. The lead endpoints
// accept arbitrary JSON objects; responses vary between installations, so
// decoding is permissive.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the lead operations the sync engine needs.
type Client interface {
	CreateLead(ctx context.Context, payload map[string]any) (map[string]any, error)
	UpdateLead(ctx context.Context, externalID string, payload map[string]any) (map[string]any, error)
}

// APIError is returned when the CRM responds with a non-2xx status. Body is
// truncated so it can be stored as sync error text.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm: HTTP %d: %s", e.StatusCode, e.Body)
}

const maxErrorBody = 500

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a CRM client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) (Client, error) {
	if baseURL == "" {
		return nil, eris.New("crm: base URL is required")
	}
	if token == "" {
		return nil, eris.New("crm: token is required")
	}
	c := &httpClient{
		baseURL: trimTrailingSlash(baseURL),
		token:   token,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (c *httpClient) CreateLead(ctx context.Context, payload map[string]any) (map[string]any, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/leads", payload)
	if err != nil {
		return nil, eris.Wrap(err, "crm: create lead")
	}
	return resp, nil
}

func (c *httpClient) UpdateLead(ctx context.Context, externalID string, payload map[string]any) (map[string]any, error) {
	resp, err := c.request(ctx, http.MethodPut, "/api/leads/"+externalID, payload)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("crm: update lead %s", externalID))
	}
	return resp, nil
}

func (c *httpClient) request(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	// Some installations answer with plain text; a non-object body is not
	// an error, it just carries no external id.
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, nil
	}
	return out, nil
}
