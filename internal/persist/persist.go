// Package persist mirrors in-memory store state into a named-blob storage
// under a versioned envelope, and hydrates it back on startup.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Storage is a named-blob store, the local-storage analogue.
type Storage interface {
	GetItem(ctx context.Context, name string) ([]byte, bool, error)
	SetItem(ctx context.Context, name string, value []byte) error
	RemoveItem(ctx context.Context, name string) error
}

// Migration rewrites a persisted state from one version to the next.
type Migration func(state json.RawMessage) (json.RawMessage, error)

// Migrations maps a source version to the migration that produces
// version+1.
type Migrations map[int]Migration

var (
	// ErrFutureVersion indicates the stored blob was written by a newer
	// build than this one.
	ErrFutureVersion = errors.New("persist: stored version is newer than supported")

	// ErrNoMigration indicates a gap in the migration chain.
	ErrNoMigration = errors.New("persist: no migration for stored version")
)

type envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// Bridge persists values of type T under one storage name.
type Bridge[T any] struct {
	name       string
	storage    Storage
	version    int
	migrations Migrations
	logger     *slog.Logger

	mu sync.Mutex // serializes writes
}

// NewBridge creates a bridge writing version-tagged envelopes.
func NewBridge[T any](name string, storage Storage, version int, migrations Migrations, logger *slog.Logger) *Bridge[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge[T]{
		name:       name,
		storage:    storage,
		version:    version,
		migrations: migrations,
		logger:     logger.With("component", "persist", "store", name),
	}
}

// Name returns the storage name.
func (b *Bridge[T]) Name() string { return b.name }

// Load reads, migrates and decodes the stored value. found is false when
// nothing is stored.
func (b *Bridge[T]) Load(ctx context.Context) (value T, found bool, err error) {
	raw, ok, err := b.storage.GetItem(ctx, b.name)
	if err != nil {
		return value, false, fmt.Errorf("persist: read %s: %w", b.name, err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return value, false, nil
	}

	version, state, err := unwrap(raw)
	if err != nil {
		return value, true, fmt.Errorf("persist: decode %s: %w", b.name, err)
	}
	if version > b.version {
		return value, true, fmt.Errorf("%w: %s at v%d, want <= v%d", ErrFutureVersion, b.name, version, b.version)
	}
	for v := version; v < b.version; v++ {
		migrate, ok := b.migrations[v]
		if !ok {
			return value, true, fmt.Errorf("%w: %s v%d", ErrNoMigration, b.name, v)
		}
		if state, err = migrate(state); err != nil {
			return value, true, fmt.Errorf("persist: migrate %s v%d: %w", b.name, v, err)
		}
	}

	if err := json.Unmarshal(state, &value); err != nil {
		return value, true, fmt.Errorf("persist: decode %s state: %w", b.name, err)
	}
	return value, true, nil
}

// Hydrate loads the stored value and hands it to into. Missing, corrupt or
// unmigratable data leaves the caller's defaults in place; failures are
// logged. It reports whether into was called.
func (b *Bridge[T]) Hydrate(ctx context.Context, into func(T)) bool {
	value, found, err := b.Load(ctx)
	if err != nil {
		b.logger.Warn("hydration failed, keeping defaults", "error", err)
		return false
	}
	if !found {
		b.logger.Debug("nothing persisted yet")
		return false
	}
	into(value)
	return true
}

// Save writes the full value under the current version.
func (b *Bridge[T]) Save(ctx context.Context, value T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveLocked(ctx, value)
}

func (b *Bridge[T]) saveLocked(ctx context.Context, value T) error {
	state, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", b.name, err)
	}
	data, err := json.Marshal(envelope{Version: b.version, State: state})
	if err != nil {
		return fmt.Errorf("persist: encode %s envelope: %w", b.name, err)
	}
	if err := b.storage.SetItem(ctx, b.name, data); err != nil {
		return fmt.Errorf("persist: write %s: %w", b.name, err)
	}
	return nil
}

// Clear removes the stored value.
func (b *Bridge[T]) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.storage.RemoveItem(ctx, b.name); err != nil {
		return fmt.Errorf("persist: remove %s: %w", b.name, err)
	}
	return nil
}

// Mirror saves snapshot() every time subscribe's callback fires. Write
// failures are logged and do not stop mirroring. The returned func stops
// mirroring.
func (b *Bridge[T]) Mirror(ctx context.Context, subscribe func(func()) func(), snapshot func() T) (stop func()) {
	return subscribe(func() {
		if ctx.Err() != nil {
			return
		}
		// Snapshot under the write lock so a slower writer never stores
		// an older state over a newer one.
		b.mu.Lock()
		err := b.saveLocked(ctx, snapshot())
		b.mu.Unlock()
		if err != nil {
			b.logger.Warn("write-through failed", "error", err)
		}
	})
}

// unwrap splits a stored blob into its version and state. Blobs without
// the envelope are legacy version 0 states.
func unwrap(raw []byte) (int, json.RawMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, nil, err
	}
	rawVersion, hasVersion := probe["version"]
	state, hasState := probe["state"]
	if !hasVersion || !hasState {
		return 0, json.RawMessage(raw), nil
	}

	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return 0, nil, fmt.Errorf("version: %w", err)
	}
	return version, state, nil
}
