package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/recall/internal/core"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	fs := NewFileStorage(dir)

	if _, ok, err := fs.GetItem(ctx, "recall-chat"); err != nil || ok {
		t.Fatalf("GetItem on empty dir: ok=%v err=%v", ok, err)
	}

	if err := fs.SetItem(ctx, "recall-chat", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	if err := fs.SetItem(ctx, "recall-chat", []byte(`{"version":2}`)); err != nil {
		t.Fatalf("SetItem overwrite: %v", err)
	}

	got, ok, err := fs.GetItem(ctx, "recall-chat")
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"version":2}` {
		t.Errorf("value = %s", got)
	}

	info, err := os.Stat(filepath.Join(dir, "recall-chat.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %d entries", len(entries))
	}

	if err := fs.RemoveItem(ctx, "recall-chat"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if err := fs.RemoveItem(ctx, "recall-chat"); err != nil {
		t.Errorf("second RemoveItem: %v", err)
	}
	if _, ok, _ := fs.GetItem(ctx, "recall-chat"); ok {
		t.Error("item still present after remove")
	}
}

func TestFileStorage_RejectsTraversal(t *testing.T) {
	t.Parallel()

	fs := NewFileStorage(t.TempDir())
	for _, name := range []string{"", "..", "../etc/passwd", `a\b`} {
		if err := fs.SetItem(context.Background(), name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("SetItem(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestFileStorage_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := NewFileStorage(t.TempDir())
	if err := fs.SetItem(ctx, "x", []byte("1")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStorage()
	buf := []byte("abc")
	_ = m.SetItem(ctx, "k", buf)
	buf[0] = 'z'

	got, ok, _ := m.GetItem(ctx, "k")
	if !ok || string(got) != "abc" {
		t.Errorf("got %q ok=%v", got, ok)
	}
	got[1] = 'z'
	again, _, _ := m.GetItem(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}

	_ = m.RemoveItem(ctx, "k")
	if _, ok, _ := m.GetItem(ctx, "k"); ok {
		t.Error("item present after remove")
	}
}

func TestModule_DefaultsUnderDataDir(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	appCtx := core.NewAppContext(nil, dataDir)
	mod, err := appCtx.LoadModule("store.file")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	fs := mod.(*Module).Storage()
	if want := filepath.Join(dataDir, "state"); fs.Dir() != want {
		t.Errorf("Dir = %q, want %q", fs.Dir(), want)
	}
	svc, ok := appCtx.Service(StorageService)
	if !ok || svc != fs {
		t.Error("storage service not registered")
	}
}
