package watcher

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "static", "js"), 0755); err != nil {
		t.Fatal(err)
	}
	w := New(root, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, root
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func contains(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

func TestStartEmptyDir(t *testing.T) {
	w := New("", 0, slog.Default())
	if err := w.Start(); err == nil {
		t.Error("Start with empty dir should fail")
	}
}

func TestStartMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), 0, slog.Default())
	if err := w.Start(); err == nil {
		t.Error("Start with missing dir should fail")
	}
	w.Stop()
}

func TestDefaultDebounce(t *testing.T) {
	w := New("/tmp", 0, slog.Default())
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %s, want %s", w.debounce, DefaultDebounce)
	}
}

func TestChangeDebounced(t *testing.T) {
	w, root := newTestWatcher(t)
	ch := w.Subscribe()

	for _, name := range []string{"index.html", "app.js", "app.css"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	c := waitChange(t, ch)
	for _, want := range []string{"index.html", "app.js", "app.css"} {
		if !contains(c.Paths, want) {
			t.Errorf("change %v missing %q", c.Paths, want)
		}
	}
	if c.At.IsZero() {
		t.Error("change timestamp not set")
	}
}

func TestChangeInSubdirectory(t *testing.T) {
	w, root := newTestWatcher(t)
	ch := w.Subscribe()

	if err := os.WriteFile(filepath.Join(root, "static", "js", "main.js"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c := waitChange(t, ch)
	if !contains(c.Paths, "static/js/main.js") {
		t.Errorf("change %v missing static/js/main.js", c.Paths)
	}
}

func TestNewDirectoryIsWatched(t *testing.T) {
	w, root := newTestWatcher(t)
	ch := w.Subscribe()

	dir := filepath.Join(root, "media")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	waitChange(t, ch)

	if err := os.WriteFile(filepath.Join(dir, "logo.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	c := waitChange(t, ch)
	if !contains(c.Paths, "media/logo.png") {
		t.Errorf("change %v missing media/logo.png", c.Paths)
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	w, _ := newTestWatcher(t)
	ch := w.Subscribe()
	w.Stop()
	w.Stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed by Stop")
	}
}

func TestUnsubscribe(t *testing.T) {
	w, _ := newTestWatcher(t)
	ch := w.Subscribe()
	w.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Unsubscribe")
	}
	w.mu.Lock()
	n := len(w.clients)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("clients = %d, want 0", n)
	}
}

func TestSubscribeAfterStop(t *testing.T) {
	w, _ := newTestWatcher(t)
	w.Stop()

	select {
	case _, ok := <-w.Subscribe():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Subscribe after Stop returned an open channel")
	}
}

func TestStopAfterFailedStart(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can watch unreadable directories")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	w := New(root, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := w.Start(); err == nil {
		t.Fatal("Start with an unreadable subdirectory should fail")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}
