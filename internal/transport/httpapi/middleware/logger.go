package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shed3/investment-accountant/pkg/logger"
)

// maxErrorBody bounds how much of a failed response is kept for the log
const maxErrorBody = 4 << 10

// errorBodyWriter keeps the body of 4xx and 5xx responses
type errorBodyWriter struct {
	chimiddleware.WrapResponseWriter
	body bytes.Buffer
}

func (e *errorBodyWriter) Write(b []byte) (int, error) {
	if e.Status() >= http.StatusBadRequest && e.body.Len() < maxErrorBody {
		e.body.Write(b[:min(len(b), maxErrorBody-e.body.Len())])
	}
	return e.WrapResponseWriter.Write(b)
}

// errorMessage renders the code and message of a JSON error body
func errorMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &resp) != nil || resp.Error == "" {
		return ""
	}
	if resp.Code == "" {
		return resp.Error
	}
	return resp.Code + ": " + resp.Error
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Logger logs one record per request: info on success, warn for client
// errors and error for server errors, with the error code when the body
// carries one.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ew := &errorBodyWriter{WrapResponseWriter: chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)}

			reqID := chimiddleware.GetReqID(r.Context())
			if reqID != "" {
				r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, reqID))
			}

			defer func() {
				status := ew.Status()
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ew.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"remote_addr", r.RemoteAddr,
				}
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					attrs = append(attrs, "route", rctx.RoutePattern())
				}
				if msg := errorMessage(ew.body.Bytes()); msg != "" {
					attrs = append(attrs, "error", msg)
				}
				log.WithContext(r.Context()).Log(r.Context(), levelFor(status), "HTTP request", attrs...)
			}()

			next.ServeHTTP(ew, r)
		})
	}
}
