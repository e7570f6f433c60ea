// Package phishing talks to the external phishing analyzer that rates a page
// URL as SAFE, CAUTION, DANGER or UNKNOWN.
package phishing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/metrics"
	"github.com/mbd888/pagewatch/internal/traces"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL     = "http://localhost:8001"
	DefaultAnalyzePath = "/api/v1/analyze"
	DefaultTimeout     = 5 * time.Second
	MinTimeout         = 100 * time.Millisecond

	maxResponseSize = 1 << 20 // 1MB
)

// Status is the analyzer's rating of a URL.
type Status string

const (
	StatusSafe    Status = "SAFE"
	StatusCaution Status = "CAUTION"
	StatusDanger  Status = "DANGER"
	StatusUnknown Status = "UNKNOWN"
)

func (s Status) valid() bool {
	switch s {
	case StatusSafe, StatusCaution, StatusDanger, StatusUnknown:
		return true
	}
	return false
}

// Risky reports whether the rating should be recorded as a phishing event.
func (s Status) Risky() bool {
	return s == StatusDanger || s == StatusCaution
}

// Verdict is the analyzer's answer. Fields other than these three, including
// any "score", are dropped.
type Verdict struct {
	Status          Status   `json:"status"`
	DetectionSource string   `json:"detection_source"`
	Reports         []string `json:"reports"`
}

// Lookup rates a page URL.
type Lookup interface {
	Analyze(ctx context.Context, pageURL string) (*Verdict, error)
}

// Config locates the analyzer.
type Config struct {
	BaseURL     string
	AnalyzePath string
	Timeout     time.Duration
}

// Endpoint returns the full analyze URL after applying defaults.
func (c Config) Endpoint() string {
	n := c.normalized()
	return n.BaseURL + n.AnalyzePath
}

func (c Config) normalized() Config {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")

	path := strings.TrimSpace(c.AnalyzePath)
	if path == "" {
		path = DefaultAnalyzePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	return Config{BaseURL: base, AnalyzePath: path, Timeout: timeout}
}

// Client is the HTTP Lookup. Each call makes exactly one attempt.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	n := cfg.normalized()
	return &Client{
		endpoint: n.BaseURL + n.AnalyzePath,
		client:   &http.Client{Timeout: n.Timeout},
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Analyze posts {"url": pageURL} to the analyzer.
func (c *Client) Analyze(ctx context.Context, pageURL string) (*Verdict, error) {
	ctx, span := traces.StartSpan(ctx, "phishing.Analyze", traces.PageURL(pageURL))
	defer span.End()

	start := time.Now()
	verdict, err := c.analyze(ctx, pageURL)
	if err != nil {
		outcome := "error"
		var lerr *Error
		if errors.As(err, &lerr) {
			outcome = string(lerr.Code)
			span.SetAttributes(traces.ErrorCode(outcome))
		}
		metrics.ObserveLookup(outcome, time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		logging.L(ctx).Warn("phishing lookup failed", "url", pageURL, "error", err)
		return nil, err
	}

	metrics.ObserveLookup(string(verdict.Status), time.Since(start))
	span.SetAttributes(traces.VerdictStatus(string(verdict.Status)))
	logging.L(ctx).Debug("phishing lookup", "url", pageURL, "status", verdict.Status)
	return verdict, nil
}

func (c *Client) analyze(ctx context.Context, pageURL string) (*Verdict, error) {
	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(CodeUnreachable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, newError(CodeTimeout, err)
		}
		return nil, newError(CodeUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, newError(CodeTimeout, err)
		}
		return nil, newError(CodeUnreachable, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{Code: CodeUpstreamError, UpstreamStatus: resp.StatusCode}
	}

	return parseVerdict(respBody)
}

func parseVerdict(body []byte) (*Verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, newError(CodeInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if fields == nil {
		return nil, newError(CodeInvalidResponse, errors.New("response is not an object"))
	}

	v := &Verdict{Reports: []string{}}

	var status string
	if err := json.Unmarshal(fields["status"], &status); err != nil || !Status(status).valid() {
		return nil, newError(CodeInvalidResponse, fmt.Errorf("invalid status %s", fields["status"]))
	}
	v.Status = Status(status)

	if raw, ok := fields["detection_source"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &v.DetectionSource); err != nil {
			return nil, newError(CodeInvalidResponse, fmt.Errorf("invalid detection_source: %w", err))
		}
	}

	if raw, ok := fields["reports"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &v.Reports); err != nil {
			return nil, newError(CodeInvalidResponse, fmt.Errorf("invalid reports: %w", err))
		}
		if v.Reports == nil {
			v.Reports = []string{}
		}
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
