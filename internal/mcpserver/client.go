package mcpserver

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

// Config holds the configuration for connecting to a pagewatch API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8000"
	Timeout time.Duration // Per request; zero means 30s
}

// PagewatchClient is a pure HTTP client for the pagewatch API.
type PagewatchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPagewatchClient creates a new client for the pagewatch API.
func NewPagewatchClient(cfg Config) *PagewatchClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PagewatchClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"detail"`
}

func (e apiError) String() string {
	if len(e.Detail) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Detail))
	for i, d := range e.Detail {
		parts[i] = d.Field + ": " + d.Message
	}
	return strings.Join(parts, "; ")
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *PagewatchClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d, %s): %s", resp.StatusCode, apiErr.Error, apiErr.String())
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ClassifyEvent returns the reason tags for one event.
func (c *PagewatchClient) ClassifyEvent(ctx context.Context, eventType, pageURL string, meta map[string]any) (json.RawMessage, error) {
	body := map[string]any{"type": eventType, "url": pageURL}
	if meta != nil {
		body["meta"] = meta
	}
	return c.doRequest(ctx, http.MethodPost, "/analyze/event", nil, body)
}

// AnalyzeBatch summarizes a list of timestamped events for a page.
func (c *PagewatchClient) AnalyzeBatch(ctx context.Context, pageURL string, events []any) (json.RawMessage, error) {
	body := map[string]any{"url": pageURL, "events": events}
	return c.doRequest(ctx, http.MethodPost, "/analyze/batch", nil, body)
}

// CheckURL asks for the phishing verdict of a page.
func (c *PagewatchClient) CheckURL(ctx context.Context, pageURL string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/analyze/url", nil, map[string]string{"url": pageURL})
}

// RecentEvents lists stored events, newest first.
func (c *PagewatchClient) RecentEvents(ctx context.Context, limit int) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/events", limitQuery(limit), nil)
}

// RecentDomains lists recently seen domains, newest first.
func (c *PagewatchClient) RecentDomains(ctx context.Context, limit int) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/domains", limitQuery(limit), nil)
}

// Summary returns counts over the stored event log.
func (c *PagewatchClient) Summary(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/summary", nil, nil)
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}
