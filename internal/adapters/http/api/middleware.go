package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/inhouse/internal/domain/dedupe"
	"github.com/okian/inhouse/pkg/metrics"
)

// IdempotencyKeyHeader carries the client's at-least-once delivery key.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency record.
const ReplayedHeader = "Idempotent-Replayed"

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)
	}
}

// IdempotencyMiddleware applies a request once per Idempotency-Key. Repeats
// get the recorded response; a repeat that arrives while the first is still
// running gets 409. Server errors release the key so the client can retry.
// Requests without the header pass straight through.
func IdempotencyMiddleware(idem Idempotency, endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" || idem == nil {
			next.ServeHTTP(w, r)
			return
		}
		key = endpoint + ":" + key
		ctx := r.Context()

		entry, claimed := idem.Claim(ctx, key)
		if !claimed {
			if entry.Status == 0 {
				writeError(w, http.StatusConflict, "in_flight", NewKind("api.idempotency", ErrInFlight))
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set(ReplayedHeader, "true")
			w.WriteHeader(entry.Status)
			_, _ = w.Write(entry.Body)
			return
		}

		rec := &recordingWriter{responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK}}
		next.ServeHTTP(rec, r)
		if rec.statusCode >= http.StatusInternalServerError {
			idem.Release(ctx, key)
			return
		}
		idem.Record(ctx, key, dedupe.Entry{Status: rec.statusCode, Body: rec.body.Bytes()})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// recordingWriter also keeps a copy of the body.
type recordingWriter struct {
	responseWriter
	body bytes.Buffer
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.responseWriter.Write(b)
}
