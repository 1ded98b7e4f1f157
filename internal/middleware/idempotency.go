package middleware

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/onnwee/beaconads/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayedHeader marks a response served from storage.
const IdempotentReplayedHeader = "Idempotent-Replayed"

// idempotencyResponseWriter tees the response into a buffer.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *idempotencyResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}

// Idempotency replays the stored response when a POST carries an
// Idempotency-Key already seen for the same user and route. Requests without
// the header pass through. Only 2xx responses are stored. It must run after
// RequireAuth so the key is scoped to the caller.
func Idempotency(repo idempotency.Repository, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				msg := "Invalid Idempotency-Key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					msg = fmt.Sprintf("Idempotency-Key exceeds maximum length of %d characters", idempotency.MaxKeyLength)
				}
				writeJSONError(w, r.Context(), http.StatusBadRequest, "bad_request", msg)
				return
			}

			ctx := r.Context()
			scope := idempotency.Scope{UserID: GetUserID(ctx), Method: r.Method, Route: r.URL.Path}

			existing, err := repo.Get(ctx, scope, key)
			switch {
			case err == nil:
				slog.InfoContext(ctx, "idempotency key found, replaying stored response",
					"key", key,
					"route", scope.Route,
					"status", existing.StatusCode,
				)
				if metrics != nil {
					metrics.IncIdempotentReplays(scope.Route)
				}
				if existing.ContentType != "" {
					w.Header().Set("Content-Type", existing.ContentType)
				}
				w.Header().Set(IdempotentReplayedHeader, "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			record := &idempotency.Record{
				Key:          key,
				StatusCode:   capture.statusCode,
				ContentType:  capture.Header().Get("Content-Type"),
				ResponseBody: capture.body.String(),
			}
			if err := repo.Store(ctx, scope, record); err != nil && !errors.Is(err, idempotency.ErrKeyExists) {
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}
