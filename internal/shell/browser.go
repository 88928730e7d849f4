package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// BrowserWindow is a Window backed by the system browser. Content counts
// as loaded once the URL answers 200 through the trusting client.
type BrowserWindow struct {
	client   *http.Client
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
	open     func(url string) error

	mu     sync.Mutex
	url    string
	closed bool
}

// BrowserOptions configures a BrowserWindow.
type BrowserOptions struct {
	// Timeout bounds each LoadURL call. Defaults to 15s.
	Timeout time.Duration
	// Launch opens the system browser after content loads.
	Launch bool
	Logger *slog.Logger
}

// NewBrowserWindow creates a BrowserWindow whose probes go through the
// localhost trust hook.
func NewBrowserWindow(opts BrowserOptions) *BrowserWindow {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &BrowserWindow{
		client:   NewTrustingClient(nil, 5*time.Second),
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		interval: 200 * time.Millisecond,
		open:     func(string) error { return nil },
	}
	if opts.Launch {
		w.open = openBrowser
	}
	return w
}

// LoadURL waits until url serves 200, then opens it.
func (w *BrowserWindow) LoadURL(ctx context.Context, url string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("window is closed")
	}
	w.url = url
	w.mu.Unlock()

	if err := w.probe(ctx, url); err != nil {
		return err
	}
	if err := w.open(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// Reload re-checks the current URL. An external browser cannot be told to
// refresh, so the user sees the change on their next navigation.
func (w *BrowserWindow) Reload(ctx context.Context) error {
	w.mu.Lock()
	url, closed := w.url, w.closed
	w.mu.Unlock()
	if closed || url == "" {
		return errors.New("nothing to reload")
	}
	if err := w.probe(ctx, url); err != nil {
		return err
	}
	w.logger.Info("content reloaded", "url", url)
	return nil
}

// Close marks the window closed.
func (w *BrowserWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.client.CloseIdleConnections()
	return nil
}

func (w *BrowserWindow) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var lastErr error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := w.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("%s returned %d", url, resp.StatusCode)
		} else {
			lastErr = err
		}
		w.logger.Debug("content not ready", "url", url, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("load %s: %w (last error: %v)", url, ctx.Err(), lastErr)
		case <-time.After(w.interval):
		}
	}
}

// openBrowser opens url with the platform's default handler. The child is
// reaped in the background.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default: // linux, freebsd, etc
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
