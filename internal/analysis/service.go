package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/metrics"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/traces"
	"github.com/mbd888/pagewatch/internal/validation"
	"go.opentelemetry.io/otel/codes"
)

// BatchRequest is the body of POST /analyze/batch.
type BatchRequest struct {
	URL    string              `json:"url"`
	Events []events.BatchEvent `json:"events"`
}

// BatchResult pairs the batch summary with the page verdict.
type BatchResult struct {
	Summary  *BatchSummary     `json:"summary"`
	Phishing *phishing.Verdict `json:"phishing"`
}

// DecodeBatchRequest parses and validates a batch body, reporting every
// invalid event with its index (events[3].meta.action).
func DecodeBatchRequest(data []byte) (*BatchRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, validation.ValidationErrors{{Field: "body", Message: "input should be a valid object"}}
	}

	var (
		req  BatchRequest
		errs validation.ValidationErrors
	)

	var pageURL string
	if v, ok := raw["url"]; !ok || isNull(v) {
		errs.Add("url", "field required")
	} else if json.Unmarshal(v, &pageURL) != nil {
		errs.Add("url", "input should be a valid string")
	} else if verr := validation.AbsoluteURL("url", pageURL)(); verr != nil {
		errs = append(errs, *verr)
	} else {
		req.URL = strings.TrimSpace(pageURL)
	}

	var items []json.RawMessage
	if v, ok := raw["events"]; !ok || isNull(v) {
		errs.Add("events", "field required")
	} else if json.Unmarshal(v, &items) != nil {
		errs.Add("events", "input should be a valid list")
	}

	req.Events = make([]events.BatchEvent, 0, len(items))
	for i, item := range items {
		var e events.BatchEvent
		if err := json.Unmarshal(item, &e); err != nil {
			errs = append(errs, events.AsValidation(err).Prefixed(fmt.Sprintf("events[%d]", i))...)
			continue
		}
		req.Events = append(req.Events, e)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &req, nil
}

// URLRequest is the body of POST /analyze/url.
type URLRequest struct {
	URL string `json:"url"`
}

// Validate checks the URL is absolute http(s).
func (r URLRequest) Validate() validation.ValidationErrors {
	return validation.Validate(validation.AbsoluteURL("url", r.URL))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Service runs batch analysis against a phishing Lookup.
type Service struct {
	lookup phishing.Lookup
}

// NewService creates a new analysis service
func NewService(lookup phishing.Lookup) *Service {
	return &Service{lookup: lookup}
}

// AnalyzeBatch aggregates the events and makes exactly one lookup for the
// page URL. A lookup error fails the whole batch and is returned unchanged.
func (s *Service) AnalyzeBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	ctx, span := traces.StartSpan(ctx, "analysis.AnalyzeBatch",
		traces.PageURL(req.URL),
		traces.EventCount(len(req.Events)),
	)
	defer span.End()

	summary := Aggregate(req.Events)

	verdict, err := s.lookup.Analyze(ctx, req.URL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &BatchResult{Summary: summary, Phishing: verdict}, nil
}

// AnalyzeURL returns the verdict for a single page URL.
func (s *Service) AnalyzeURL(ctx context.Context, pageURL string) (*phishing.Verdict, error) {
	return s.lookup.Analyze(ctx, pageURL)
}

// ClassifyEvent returns the reason tags for one event.
func (s *Service) ClassifyEvent(ctx context.Context, e *events.Event) []string {
	_, span := traces.StartSpan(ctx, "analysis.ClassifyEvent", traces.EventType(string(e.Type)))
	defer span.End()

	reasons := e.Reasons()
	metrics.ObserveClassification(string(e.Type), reasons)
	return reasons
}
