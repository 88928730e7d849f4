package httputil

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorWritesPlainText(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	rec := httptest.NewRecorder()
	Error(rec, req, logger, http.StatusForbidden, "Forbidden", "WHY: traversal")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "Forbidden" {
		t.Errorf("body = %q, want %q", got, "Forbidden")
	}
	if strings.Contains(rec.Body.String(), "WHY") {
		t.Error("why must not leak into the response body")
	}
	if !strings.Contains(logs.String(), "WHY: traversal") {
		t.Errorf("log should record why, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), "path=/secret") {
		t.Errorf("log should record path, got %q", logs.String())
	}
}

func TestServerErrorIncludesMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	ServerError(rec, req, logger, "WHY: read failed", errors.New("permission denied"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "permission denied") {
		t.Errorf("body = %q, want underlying error message", rec.Body.String())
	}
}

func TestErrorDropsStaleContentLength(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Length", "999")
	Error(rec, req, logger, http.StatusNotFound, "File not found: /", "WHY: test")

	if cl := rec.Header().Get("Content-Length"); cl != "" {
		t.Errorf("Content-Length = %q, want unset", cl)
	}
}
