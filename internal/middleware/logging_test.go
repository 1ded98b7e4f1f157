package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogEntry is a parsed JSON log line.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/beacons", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, buf)
	if entry.Method != "GET" || entry.Path != "/beacons" {
		t.Errorf("unexpected method/path: %s %s", entry.Method, entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
}

func TestLogging_ErrorCodeFromHandlerContext(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "not_found")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/beacons/x", nil))

	entry := parseLogEntry(t, buf)
	if entry.ErrorCode != "not_found" {
		t.Errorf("expected error_code not_found, got %q", entry.ErrorCode)
	}
	if entry.Level != "WARN" {
		t.Errorf("expected level WARN, got %s", entry.Level)
	}
}

func TestLogging_ErrorCodeThroughMetricsWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "internal_error"))
		w.WriteHeader(http.StatusInternalServerError)
	})
	handler := Logging(newTestLogger(buf))(HTTPMetrics(NewMetrics())(inner))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/logs", nil))

	entry := parseLogEntry(t, buf)
	if entry.ErrorCode != "internal_error" {
		t.Errorf("expected error_code internal_error, got %q", entry.ErrorCode)
	}
	if entry.Level != "ERROR" {
		t.Errorf("expected level ERROR, got %s", entry.Level)
	}
}

func TestLogging_NoErrorCodeFor2xx(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "stale"))
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/beacons", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "" {
		t.Errorf("expected no error_code for 201, got %q", entry.ErrorCode)
	}
}

func TestLogging_WithRequestIDAndUser(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetUserID(r.Context(), "user-42"))
	})
	handler := RequestID(Logging(newTestLogger(buf))(inner))

	req := httptest.NewRequest(http.MethodGet, "/me/ads/liked-saved", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, buf)
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request_id req-abc, got %q", entry.RequestID)
	}
	if entry.UserID != "user-42" {
		t.Errorf("expected user_id user-42, got %q", entry.UserID)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetErrorCode(ctx) != "" {
		t.Fatal("expected empty values on bare context")
	}
	ctx = SetErrorCode(SetUserID(ctx, "u1"), "conflict")
	if GetUserID(ctx) != "u1" {
		t.Errorf("expected u1, got %q", GetUserID(ctx))
	}
	if GetErrorCode(ctx) != "conflict" {
		t.Errorf("expected conflict, got %q", GetErrorCode(ctx))
	}
}

func TestResponseWriter_WriteHeaderOnce(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	if rw.statusCode != http.StatusAccepted {
		t.Errorf("expected first status to stick, got %d", rw.statusCode)
	}
}

func TestNewLogger(t *testing.T) {
	if NewLogger("production") == nil || NewLogger("development") == nil {
		t.Fatal("expected loggers")
	}
	if !NewLogger("development").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level in development")
	}
	if NewLogger("production").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug disabled in production")
	}
}
