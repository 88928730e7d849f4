// Package shell bootstraps the application window.
//
// In dev mode the window is pointed at a live development server. Packaged
// builds provision a throwaway certificate, start the loopback static
// server and load https://localhost:<port> only after the port is known.
//
// Lifecycle owns the window and the static server. No other component
// starts or stops the server.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/remo-app/remo-shell/internal/static"
	localtls "github.com/remo-app/remo-shell/internal/tls"
	"github.com/remo-app/remo-shell/internal/watcher"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Window is the application window the shell drives.
type Window interface {
	// LoadURL points the window at url and returns once the content has
	// finished loading.
	LoadURL(ctx context.Context, url string) error
	// Reload reloads the current content.
	Reload(ctx context.Context) error
	// Close closes the window programmatically.
	Close() error
}

// Options configures a Lifecycle.
type Options struct {
	Dev         bool
	DevURL      string
	RootDir     string
	WatchAssets bool
	AccessLog   bool

	// GOOS selects the platform quit policy. Defaults to runtime.GOOS.
	GOOS string

	// NewWindow creates the application window. Required.
	NewWindow func() (Window, error)

	// Provision creates certificate material. Defaults to localtls.Generate.
	Provision func() (*localtls.Material, error)

	// OnStateChange, if set, is called after every transition, outside
	// the lifecycle lock.
	OnStateChange func(from, to State)

	Logger *slog.Logger
}

// Lifecycle drives the window through
// Uninitialized → Loading(dev|prod) → Ready → Closed.
type Lifecycle struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	launching bool
	stopped   bool
	window    Window
	server    *static.Server
	watcher   *watcher.Watcher
	url       string
}

// New creates a Lifecycle in the Uninitialized state.
func New(opts Options) *Lifecycle {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Provision == nil {
		opts.Provision = localtls.Generate
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Lifecycle{opts: opts, logger: opts.Logger}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// URL returns the URL the window was pointed at, or "" without a window.
func (l *Lifecycle) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// ServerPort returns the static server's port, or 0 when none is running.
func (l *Lifecycle) ServerPort() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server == nil {
		return 0
	}
	return l.server.Port()
}

// Launch creates the window and loads its content. Creation failures are
// logged and returned, leaving the lifecycle Uninitialized; a content load
// failure is logged and leaves the window in its loading state. Nothing is
// retried.
//
// Certificate generation, server startup and window creation run without
// the lifecycle lock, so State and the other getters stay responsive.
func (l *Lifecycle) Launch(ctx context.Context) error {
	l.mu.Lock()
	switch {
	case l.stopped:
		l.mu.Unlock()
		return fmt.Errorf("%w: launch after shutdown", ErrInvalidTransition)
	case l.state != Uninitialized || l.launching:
		st := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: launch from %s", ErrInvalidTransition, st)
	}
	l.launching = true
	l.mu.Unlock()

	b, err := l.build(ctx)

	l.mu.Lock()
	l.launching = false
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if l.stopped {
		l.mu.Unlock()
		b.teardown(l.logger)
		return fmt.Errorf("%w: shut down during launch", ErrInvalidTransition)
	}
	l.window, l.server, l.watcher, l.url = b.window, b.server, b.watcher, b.url
	l.state = b.state
	// Subscribe before anyone can observe the new state: a close from
	// OnStateChange stops the watcher and must find this channel.
	var changes <-chan watcher.Change
	if b.watcher != nil {
		changes = b.watcher.Subscribe()
	}
	l.mu.Unlock()

	if changes != nil {
		go l.reloadOnChange(changes, b.window)
	}
	l.notify(Uninitialized, b.state)

	if !l.holds(b.window, b.state) {
		l.logger.Info("window closed before loading", "url", b.url)
		return nil
	}

	l.logger.Info("loading window", "mode", b.state.String(), "url", b.url)
	if err := b.window.LoadURL(ctx, b.url); err != nil {
		l.logger.Error("window content failed to load", "url", b.url, "error", err, "why", "renderer load errors are not retried")
		return nil
	}

	l.mu.Lock()
	if l.window != b.window || l.state != b.state {
		// Closed while loading.
		l.mu.Unlock()
		return nil
	}
	l.state = Ready
	l.mu.Unlock()
	l.notify(b.state, Ready)
	l.logger.Info("window ready", "url", b.url)
	return nil
}

// holds reports whether win is still the open window in state st.
func (l *Lifecycle) holds(win Window, st State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window == win && l.state == st
}

// launch is everything one Launch creates before it is committed.
type launch struct {
	url     string
	state   State
	window  Window
	server  *static.Server
	watcher *watcher.Watcher
}

func (b *launch) teardown(logger *slog.Logger) {
	if b.window != nil {
		if err := b.window.Close(); err != nil {
			logger.Warn("window close", "error", err)
		}
	}
	if b.watcher != nil {
		b.watcher.Stop()
	}
	if b.server != nil {
		if err := b.server.Close(); err != nil {
			logger.Warn("static server close", "error", err)
		}
	}
}

// build starts the server (packaged mode only) and then creates the window.
// On error nothing is left running.
func (l *Lifecycle) build(ctx context.Context) (*launch, error) {
	b := &launch{url: l.opts.DevURL, state: LoadingDev}
	if !l.opts.Dev {
		srv, root, err := l.startServer(ctx)
		if err != nil {
			l.logger.Error("static server startup failed", "error", err, "why", "packaged mode cannot load without the local server")
			return nil, err
		}
		b.server, b.url, b.state = srv, srv.URL(), LoadingProd
		if l.opts.WatchAssets {
			b.watcher = l.startWatcher(root)
		}
	}

	win, err := l.opts.NewWindow()
	if err != nil {
		b.teardown(l.logger)
		l.logger.Error("window creation failed", "error", err)
		return nil, fmt.Errorf("create window: %w", err)
	}
	b.window = win
	return b, nil
}

// startServer provisions a certificate and starts the static server.
func (l *Lifecycle) startServer(ctx context.Context) (*static.Server, string, error) {
	handler, err := static.NewHandler(l.opts.RootDir, l.logger)
	if err != nil {
		return nil, "", err
	}
	material, err := l.opts.Provision()
	if err != nil {
		return nil, "", fmt.Errorf("provision certificate: %w", err)
	}
	tlsConfig, err := material.TLSConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load certificate: %w", err)
	}
	srv := static.NewServer(static.Stack(handler, l.logger, l.opts.AccessLog), tlsConfig, l.logger)
	if _, err := srv.Start(ctx); err != nil {
		return nil, "", fmt.Errorf("start static server: %w", err)
	}
	return srv, handler.Root(), nil
}

// startWatcher is best effort; the window works without live reload.
func (l *Lifecycle) startWatcher(root string) *watcher.Watcher {
	w := watcher.New(root, watcher.DefaultDebounce, l.logger)
	if err := w.Start(); err != nil {
		l.logger.Warn("asset watcher disabled", "error", err)
		return nil
	}
	return w
}

func (l *Lifecycle) reloadOnChange(changes <-chan watcher.Change, win Window) {
	for c := range changes {
		l.mu.Lock()
		current := l.window == win
		l.mu.Unlock()
		if !current {
			return
		}
		l.logger.Info("reloading window", "changed", len(c.Paths))
		if err := win.Reload(context.Background()); err != nil {
			l.logger.Warn("window reload failed", "error", err)
		}
	}
}

// HandleWindowClosed records that the user closed the window and stops the
// static server if one is running. It reports whether the process should
// exit under the platform policy: darwin stays resident, others quit.
func (l *Lifecycle) HandleWindowClosed() (quit bool) {
	l.mu.Lock()
	prev := l.state
	if !prev.Open() {
		l.mu.Unlock()
		return l.quitOnLastWindow()
	}
	srv, w := l.server, l.watcher
	l.state = Closed
	l.window, l.server, l.watcher, l.url = nil, nil, nil, ""
	l.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	if srv != nil {
		if err := srv.Close(); err != nil {
			l.logger.Warn("static server close", "error", err)
		}
	}
	l.notify(prev, Closed)
	l.logger.Info("window closed", "from", prev.String())
	return l.quitOnLastWindow()
}

// Activate handles a platform "app reopened" signal. With no open window
// the lifecycle re-enters Uninitialized and launches again; with a window
// open, or one being created, it does nothing.
func (l *Lifecycle) Activate(ctx context.Context) error {
	l.mu.Lock()
	prev := l.state
	if prev.Open() || l.launching {
		l.mu.Unlock()
		return nil
	}
	l.state = Uninitialized
	l.mu.Unlock()
	if prev != Uninitialized {
		l.notify(prev, Uninitialized)
	}
	l.logger.Info("activating", "from", prev.String())
	return l.Launch(ctx)
}

// Shutdown closes the window, if any, and stops the server. A Launch in
// progress is torn down when it finishes; later launches are refused.
func (l *Lifecycle) Shutdown() error {
	l.mu.Lock()
	l.stopped = true
	win := l.window
	l.mu.Unlock()

	var err error
	if win != nil {
		err = win.Close()
	}
	l.HandleWindowClosed()
	return err
}

func (l *Lifecycle) quitOnLastWindow() bool {
	return l.opts.GOOS != "darwin"
}

func (l *Lifecycle) notify(from, to State) {
	if l.opts.OnStateChange != nil {
		l.opts.OnStateChange(from, to)
	}
}
