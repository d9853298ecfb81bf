package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, content string) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: 20 * time.Millisecond}), path
}

func TestWatcher_DetectsContentChange(t *testing.T) {
	t.Parallel()
	w, path := newTestWatcher(t, "version: \"1\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	body := []byte("version: \"1\"\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-w.Events():
		if evt.ConfigPath != path {
			t.Errorf("path = %q, want %q", evt.ConfigPath, path)
		}
		if evt.Digest != sha256.Sum256(body) {
			t.Error("digest does not match new content")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	t.Parallel()
	w, path := newTestWatcher(t, "same")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	w := NewWatcher(WatcherConfig{
		ConfigPath:   filepath.Join(t.TempDir(), "missing.yaml"),
		PollInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-ctx.Done():
	}
}

func TestWatcher_StopAfterCancel(t *testing.T) {
	t.Parallel()
	w, _ := newTestWatcher(t, "data")

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	t.Parallel()
	w := NewWatcher(WatcherConfig{ConfigPath: "/any/path"})

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop before Start deadlocked")
	}
}
