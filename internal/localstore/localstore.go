// Package localstore provides named-blob storage backends on the local
// filesystem and in memory.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidName indicates a blob name that would escape the data dir.
var ErrInvalidName = errors.New("localstore: invalid item name")

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileStorage stores each item as <dir>/<name>.json.
type FileStorage struct {
	dir string
}

// NewFileStorage returns a storage rooted at dir. The directory is created
// on first write.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the root directory.
func (f *FileStorage) Dir() string { return f.dir }

func (f *FileStorage) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// GetItem reads an item. A missing file is reported as not found.
func (f *FileStorage) GetItem(ctx context.Context, name string) ([]byte, bool, error) {
	if err := checkName(name); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: read %s: %w", name, err)
	}
	return data, true, nil
}

// SetItem writes an item atomically: a temp file in the same directory is
// written, synced and renamed over the target. Files are private (0600).
func (f *FileStorage) SetItem(ctx context.Context, name string, value []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("localstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("localstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("localstore: chmod: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("localstore: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("localstore: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("localstore: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, f.path(name)); err != nil {
		cleanup()
		return fmt.Errorf("localstore: replace %s: %w", name, err)
	}
	return nil
}

// RemoveItem deletes an item. Removing a missing item is not an error.
func (f *FileStorage) RemoveItem(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: remove %s: %w", name, err)
	}
	return nil
}

// MemoryStorage keeps items in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string][]byte)}
}

// GetItem returns a copy of the stored item.
func (m *MemoryStorage) GetItem(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// SetItem stores a copy of value.
func (m *MemoryStorage) SetItem(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[name] = append([]byte(nil), value...)
	return nil
}

// RemoveItem deletes an item.
func (m *MemoryStorage) RemoveItem(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, name)
	return nil
}
