// Package browserless provides a client for a browserless.io-compatible
// headless Chrome API.
package browserless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the hosted browserless API.
const defaultBaseURL = "https://chrome.browserless.io"

// Client defines the headless render operations.
type Client interface {
	// Render loads a URL in headless Chrome, following redirects, and returns
	// the rendered HTML. Cancellation and deadline come from ctx.
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
	// Screenshot captures a PNG of the rendered page.
	Screenshot(ctx context.Context, targetURL string) ([]byte, error)
}

// RenderRequest is the body for POST /content.
type RenderRequest struct {
	URL       string        `json:"url"`
	WaitUntil string        `json:"waitUntil,omitempty"` // e.g. "networkidle2"
	Timeout   time.Duration `json:"-"`
}

// RenderResult holds the rendered page.
type RenderResult struct {
	HTML       string
	FinalURL   string
	StatusCode int
}

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browserless: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL (self-hosted deployments, tests).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new browserless client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type contentRequest struct {
	URL      string             `json:"url"`
	GotoOpts *contentGotoOption `json:"gotoOptions,omitempty"`
}

type contentGotoOption struct {
	WaitUntil string `json:"waitUntil,omitempty"`
	Timeout   int64  `json:"timeout,omitempty"`
}

func (c *httpClient) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	body := contentRequest{URL: req.URL}
	if req.WaitUntil != "" || req.Timeout > 0 {
		body.GotoOpts = &contentGotoOption{WaitUntil: req.WaitUntil}
		if req.Timeout > 0 {
			body.GotoOpts.Timeout = req.Timeout.Milliseconds()
		}
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "browserless: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/content"), bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "browserless: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "browserless: execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "browserless: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	finalURL := resp.Header.Get("X-Response-URL")
	if finalURL == "" {
		finalURL = req.URL
	}

	return &RenderResult{
		HTML:       string(data),
		FinalURL:   finalURL,
		StatusCode: headerStatusCode(resp, http.StatusOK),
	}, nil
}

func (c *httpClient) Screenshot(ctx context.Context, targetURL string) ([]byte, error) {
	buf, err := json.Marshal(map[string]any{
		"url": targetURL,
		"options": map[string]any{
			"type":     "png",
			"fullPage": false,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "browserless: marshal screenshot request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/screenshot"), bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "browserless: create screenshot request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "browserless: execute screenshot request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "browserless: read screenshot body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	return data, nil
}

func (c *httpClient) endpoint(path string) string {
	if c.apiKey == "" {
		return c.baseURL + path
	}
	return c.baseURL + path + "?token=" + url.QueryEscape(c.apiKey)
}

// headerStatusCode reads the upstream page status the service forwards in
// X-Response-Code, falling back to the given default.
func headerStatusCode(resp *http.Response, fallback int) int {
	if v := resp.Header.Get("X-Response-Code"); v != "" {
		var code int
		if _, err := fmt.Sscanf(v, "%d", &code); err == nil && code > 0 {
			return code
		}
	}
	return fallback
}
