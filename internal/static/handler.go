// Package static serves the built single-page application from a root
// directory over HTTPS on a loopback ephemeral port.
//
// Request handling:
//   - "" and "/" map to index.html; every other path is URL-decoded once
//     and joined to the root
//   - a resolved path outside the root is answered with 403 before any
//     filesystem access
//   - Content-Type comes from a fixed extension table
//   - missing files are 404, other read failures 500
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/remo-app/remo-shell/internal/httputil"
)

// IndexFile is served for the empty and "/" paths.
const IndexFile = "index.html"

// ContentSecurityPolicy is attached to every successful response.
const ContentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; connect-src 'self'; img-src 'self' data:; font-src 'self'"

var (
	// ErrRootMissing is returned when the root directory does not exist or
	// is not a directory.
	ErrRootMissing = errors.New("root directory missing")

	// ErrForbidden is returned by Resolve for paths escaping the root.
	ErrForbidden = errors.New("path escapes root directory")

	// ErrBadPath is returned by Resolve for paths that cannot be decoded.
	ErrBadPath = errors.New("malformed request path")
)

// Handler serves files below a fixed root directory.
type Handler struct {
	root   string
	logger *slog.Logger

	// readFile is swapped in tests to observe filesystem access.
	readFile func(name string) ([]byte, error)
}

// NewHandler returns a Handler rooted at root. The directory must exist.
func NewHandler(root string, logger *slog.Logger) (*Handler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootMissing, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootMissing, abs)
	}
	return &Handler{
		root:     filepath.Clean(abs),
		logger:   logger,
		readFile: os.ReadFile,
	}, nil
}

// Root returns the absolute root directory.
func (h *Handler) Root() string {
	return h.root
}

// Resolve maps an escaped URL path to a file below the root.
func (h *Handler) Resolve(escapedPath string) (string, error) {
	rel := strings.TrimPrefix(escapedPath, "/")
	if rel == "" {
		return filepath.Join(h.root, IndexFile), nil
	}

	decoded, err := url.PathUnescape(rel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPath, err)
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL", ErrBadPath)
	}

	joined := filepath.Join(h.root, filepath.FromSlash(decoded))
	if !within(h.root, joined) {
		return "", ErrForbidden
	}
	return joined, nil
}

// within reports whether target is root or lies below it. Paths are
// compared segment by segment, so "/app/dist-evil" is not inside
// "/app/dist".
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, err := h.Resolve(r.URL.EscapedPath())
	switch {
	case errors.Is(err, ErrForbidden):
		httputil.Error(w, r, h.logger, http.StatusForbidden, "Forbidden",
			"WHY: resolved path escapes the root directory, possible path traversal")
		return
	case err != nil:
		httputil.Error(w, r, h.logger, http.StatusBadRequest, "Bad Request",
			"WHY: "+err.Error())
		return
	}

	data, err := h.readFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.Error(w, r, h.logger, http.StatusNotFound, "File not found: "+r.URL.Path,
				"WHY: no such file below root")
			return
		}
		httputil.ServerError(w, r, h.logger, "WHY: reading resolved file failed", err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ContentType(name))
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	hdr.Set("Content-Security-Policy", ContentSecurityPolicy)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("write response", "path", r.URL.Path, "error", err)
	}
}
