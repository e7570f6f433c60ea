package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err=%v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_DebugLevel(t *testing.T) {
	logger := New("debug", "text")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug level to be enabled")
	}
}

func TestNew_ErrorLevel(t *testing.T) {
	logger := New("error", "text")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected info level to be disabled at error level")
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")
	logger.Info("event stored", "type", "login")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "event stored" || line["type"] != "login" || line["service"] != "pagewatch" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "msg=kept") {
		t.Errorf("expected text line, got %q", out)
	}
}

func TestWithRequestID_And_RequestID(t *testing.T) {
	ctx := context.Background()

	if id := RequestID(ctx); id != "" {
		t.Errorf("Expected empty request ID, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := RequestID(ctx); id != "req-123" {
		t.Errorf("Expected req-123, got %q", id)
	}
}

func TestWithLogger_And_FromContext(t *testing.T) {
	ctx := context.Background()

	if FromContext(ctx) != slog.Default() {
		t.Error("Expected default logger when none set")
	}

	custom := New("debug", "json")
	ctx = WithLogger(ctx, custom)
	if FromContext(ctx) != custom {
		t.Error("Expected custom logger from context")
	}
}

func TestL_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithWriter(&buf, "info", "json"))
	ctx = WithRequestID(ctx, "req-456")

	L(ctx).Info("hello")

	if !strings.Contains(buf.String(), `"request_id":"req-456"`) {
		t.Errorf("expected request_id in %q", buf.String())
	}
}

func TestL_WithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithWriter(&buf, "info", "json"))

	L(ctx).Info("hello")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id in %q", buf.String())
	}
}
