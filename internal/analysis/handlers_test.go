package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLookup is a test double for phishing.Lookup
type stubLookup struct {
	verdict *phishing.Verdict
	err     error
	calls   int
}

func (s *stubLookup) Analyze(_ context.Context, _ string) (*phishing.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func safeLookup() *stubLookup {
	return &stubLookup{verdict: &phishing.Verdict{
		Status:          phishing.StatusSafe,
		DetectionSource: "WHITELIST",
		Reports:         []string{},
	}}
}

func setupRouter(lookup phishing.Lookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(lookup)).RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEvent(t *testing.T) {
	r := setupRouter(safeLookup())

	w := post(r, "/analyze/event", `{"type":"clipboard","url":"https://example.com","meta":{"action":"write","contains_crypto_address":true}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reasons":["clipboard","clipboard_write","crypto_address_present"]}`, w.Body.String())
}

func TestAnalyzeEvent_NoMeta(t *testing.T) {
	r := setupRouter(safeLookup())

	w := post(r, "/analyze/event", `{"type":"login","url":"https://login.example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reasons":["login"]}`, w.Body.String())
}

func TestAnalyzeEvent_ValidationFailed(t *testing.T) {
	r := setupRouter(safeLookup())

	w := post(r, "/analyze/event", `{"type":"clipboard","url":"https://example.com","meta":{"action":"cut"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error  string `json:"error"`
		Detail []struct {
			Field string `json:"field"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	require.Len(t, body.Detail, 1)
	assert.Equal(t, "meta.action", body.Detail[0].Field)
}

func TestAnalyzeBatch(t *testing.T) {
	lookup := safeLookup()
	r := setupRouter(lookup)

	w := post(r, "/analyze/batch", `{
		"url": "https://shop.example.com",
		"events": [
			{"ts": "2024-01-01T00:00:00Z", "type": "payment", "url": "https://shop.example.com/pay", "meta": {"amount": 10, "card_present": true}},
			{"ts": "2024-01-01T00:00:01+01:00", "type": "form_submit", "url": "https://shop.example.com/pay", "meta": {"has_payment_fields": true}}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, lookup.calls)

	var body struct {
		Summary struct {
			TotalEvents         int      `json:"total_events"`
			PaymentFieldsEvents int      `json:"payment_fields_events"`
			EventSequence       []string `json:"event_sequence"`
			Events              []struct {
				TS string `json:"ts"`
			} `json:"events"`
		} `json:"summary"`
		Phishing struct {
			Status          string   `json:"status"`
			DetectionSource string   `json:"detection_source"`
			Reports         []string `json:"reports"`
		} `json:"phishing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Summary.TotalEvents)
	assert.Equal(t, 1, body.Summary.PaymentFieldsEvents)
	assert.Equal(t, []string{"payment", "form_submit"}, body.Summary.EventSequence)
	assert.Equal(t, "2023-12-31T23:00:01Z", body.Summary.Events[1].TS)
	assert.Equal(t, "SAFE", body.Phishing.Status)
	assert.Equal(t, "WHITELIST", body.Phishing.DetectionSource)
	assert.Equal(t, []string{}, body.Phishing.Reports)
}

func TestAnalyzeBatch_IndexedErrors(t *testing.T) {
	lookup := safeLookup()
	r := setupRouter(lookup)

	w := post(r, "/analyze/batch", `{
		"url": "https://example.com",
		"events": [
			{"ts": "2024-01-01T00:00:00Z", "type": "login", "url": "https://example.com"},
			{"type": "teleport", "url": "https://example.com"}
		]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"events[1].type"`)
	assert.Contains(t, w.Body.String(), `"events[1].ts"`)
	assert.Equal(t, 0, lookup.calls)
}

func TestAnalyzeBatch_MissingFields(t *testing.T) {
	r := setupRouter(safeLookup())

	w := post(r, "/analyze/batch", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"url"`)
	assert.Contains(t, w.Body.String(), `"field":"events"`)
}

func TestAnalyzeBatch_LookupErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"timeout", &phishing.Error{Code: phishing.CodeTimeout}, http.StatusGatewayTimeout, "ai_server_timeout"},
		{"unreachable", &phishing.Error{Code: phishing.CodeUnreachable}, http.StatusBadGateway, "ai_server_unreachable"},
		{"upstream", &phishing.Error{Code: phishing.CodeUpstreamError, UpstreamStatus: 503}, http.StatusBadGateway, "ai_server_error"},
		{"invalid", &phishing.Error{Code: phishing.CodeInvalidResponse}, http.StatusBadGateway, "ai_server_invalid_response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(&stubLookup{err: tc.err})
			w := post(r, "/analyze/batch", `{"url":"https://example.com","events":[]}`)
			require.Equal(t, tc.wantStatus, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body["error"])
			if tc.wantCode == "ai_server_error" {
				assert.Equal(t, float64(503), body["upstream_status"])
			} else {
				assert.NotContains(t, body, "upstream_status")
			}
		})
	}
}

func TestAnalyzeURL(t *testing.T) {
	lookup := &stubLookup{verdict: &phishing.Verdict{
		Status:          phishing.StatusCaution,
		DetectionSource: "AI",
		Reports:         []string{"lookalike domain"},
	}}
	r := setupRouter(lookup)

	w := post(r, "/analyze/url", `{"url":"https://paypa1.example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"CAUTION","detection_source":"AI","reports":["lookalike domain"]}`, w.Body.String())

	w = post(r, "/analyze/url", `{"url":"paypa1.example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, lookup.calls)
}

func TestGetSchema(t *testing.T) {
	r := setupRouter(safeLookup())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/schema", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		EventTypes []string                   `json:"event_types"`
		MetaSchema map[string]json.RawMessage `json:"meta_schema"`
		Examples   map[string]json.RawMessage `json:"examples"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.EventTypes, 8)
	assert.Len(t, body.MetaSchema, 8)
	assert.Len(t, body.Examples, 8)
	assert.Contains(t, string(body.MetaSchema["clipboard"]), `"contains_crypto_address"`)
}
