// Package httputil provides centralized HTTP error handling for the local
// static server.
//
// Every HTTP error response goes through this package so that:
//  1. Errors are always logged with request context (method, path, remote)
//  2. Bodies are plain text, readable in the renderer's network tab
//  3. Each error site records WHY in the log, never in the body
//
// Usage:
//
//	httputil.Error(w, r, logger, http.StatusForbidden, "Forbidden",
//	    "WHY: resolved path escapes the root directory")
package httputil

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Error writes a plain-text error response and logs it. The 'why' parameter
// is logged only; 'reason' becomes the response body.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, reason string, why string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, reason,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"why", why,
	)
	write(w, status, reason)
}

// ServerError writes a 500 whose body carries the underlying error message.
// The only client is the co-located renderer, so the message is not
// considered sensitive.
func ServerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, why string, err error) {
	logger.Error("server error",
		"status", http.StatusInternalServerError,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"why", why,
		"error", err,
	)
	write(w, http.StatusInternalServerError, fmt.Sprintf("Server error: %v", err))
}

func write(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}
