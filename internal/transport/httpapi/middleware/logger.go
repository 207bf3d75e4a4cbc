package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/chargehub/pkg/logger"
)

// errorBodyRecorder keeps a copy of response bodies written with an error
// status so the request log line can carry the error message.
type errorBodyRecorder struct {
	chimiddleware.WrapResponseWriter
	body bytes.Buffer
}

func (r *errorBodyRecorder) Write(b []byte) (int, error) {
	if r.Status() >= http.StatusBadRequest {
		r.body.Write(b)
	}
	return r.WrapResponseWriter.Write(b)
}

// errorMessage extracts the "error" field from a captured JSON body.
func (r *errorBodyRecorder) errorMessage() string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(r.body.Bytes(), &payload) != nil {
		return ""
	}
	return payload.Error
}

// Logger emits one log line per request: info for successes, warn for 4xx,
// error for 5xx. It also propagates chi's request id into the logger's
// context key so downstream components can tag their own lines.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			rec := &errorBodyRecorder{
				WrapResponseWriter: chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor),
			}
			start := time.Now()

			reqID := chimiddleware.GetReqID(r.Context())
			if reqID != "" {
				r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, reqID))
			}

			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if reqID != "" {
				attrs = append(attrs, "request_id", reqID)
			}
			if msg := rec.errorMessage(); msg != "" {
				attrs = append(attrs, "error", msg)
			}

			switch {
			case rec.Status() >= http.StatusInternalServerError:
				log.Error("http request", attrs...)
			case rec.Status() >= http.StatusBadRequest:
				log.Warn("http request", attrs...)
			default:
				log.Info("http request", attrs...)
			}
		}
		return http.HandlerFunc(fn)
	}
}
