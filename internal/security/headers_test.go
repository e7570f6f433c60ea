package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

const extensionPattern = `^chrome-extension://[a-p]{32}$`

func mustPolicy(t *testing.T, origins []string, pattern string) *OriginPolicy {
	t.Helper()
	p, err := NewOriginPolicy(origins, pattern)
	if err != nil {
		t.Fatalf("NewOriginPolicy: %v", err)
	}
	return p
}

func TestHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(HeadersMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "ok")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	for header, expected := range headers {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}

	if csp := w.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("Content-Security-Policy header not set")
	}
}

func TestNewOriginPolicy_BadPattern(t *testing.T) {
	if _, err := NewOriginPolicy(nil, "("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestOriginPolicy_Allowed(t *testing.T) {
	p := mustPolicy(t, []string{"http://localhost:5173", " http://localhost:3000 "}, extensionPattern)

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://localhost:3000", true},
		{"chrome-extension://abcdefghijklmnopabcdefghijklmnop", true},
		{"chrome-extension://ABCDEFGHIJKLMNOPABCDEFGHIJKLMNOP", false},
		{"chrome-extension://qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", false},
		{"chrome-extension://abc", false},
		{"https://evil.com", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := p.Allowed(tc.origin); got != tc.want {
			t.Errorf("Allowed(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}

	if mustPolicy(t, nil, "").Enabled() {
		t.Error("empty policy should be disabled")
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		origins       []string
		pattern       string
		requestOrigin string
		expectHeader  bool
	}{
		{
			name:          "allowed origin",
			origins:       []string{"https://example.com"},
			requestOrigin: "https://example.com",
			expectHeader:  true,
		},
		{
			name:          "wildcard allows all",
			origins:       []string{"*"},
			requestOrigin: "https://anything.com",
			expectHeader:  true,
		},
		{
			name:          "extension pattern",
			pattern:       extensionPattern,
			requestOrigin: "chrome-extension://abcdefghijklmnopabcdefghijklmnop",
			expectHeader:  true,
		},
		{
			name:          "disallowed origin",
			origins:       []string{"https://example.com"},
			requestOrigin: "https://evil.com",
			expectHeader:  false,
		},
		{
			name:          "disabled policy",
			requestOrigin: "https://example.com",
			expectHeader:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CORSMiddleware(mustPolicy(t, tc.origins, tc.pattern)))
			router.GET("/test", func(c *gin.Context) {
				c.String(200, "ok")
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Origin", tc.requestOrigin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			hasHeader := w.Header().Get("Access-Control-Allow-Origin") != ""
			if hasHeader != tc.expectHeader {
				t.Errorf("CORS header present = %v, want %v", hasHeader, tc.expectHeader)
			}
			if w.Header().Get("Access-Control-Allow-Credentials") != "" {
				t.Error("credentials must never be allowed")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CORSMiddleware(mustPolicy(t, []string{"https://example.com"}, "")))
	router.POST("/test", func(c *gin.Context) {
		c.String(200, "ok")
	})

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://example.com")
	if w.Code != http.StatusNoContent {
		t.Errorf("Preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if methods := w.Header().Get("Access-Control-Allow-Methods"); methods == "" {
		t.Error("Access-Control-Allow-Methods not set")
	}

	w = preflight("https://evil.com")
	if w.Code != http.StatusForbidden {
		t.Errorf("Disallowed preflight status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
