// Package sqlite implements a persistent SQLite-backed state store module.
// It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/localstore"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Closer       = (*Module)(nil)
)

// Module publishes a SQLite Storage as the application's state storage.
type Module struct {
	config  Config
	storage *Storage
	ctx     *core.AppContext
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.ctx = ctx

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	storage, err := Open(context.TODO(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.storage = storage
	ctx.RegisterService(localstore.StorageService, storage)

	ctx.Logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.storage.Ping(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Close implements core.Closer.
func (m *Module) Close() error {
	if m.storage == nil {
		return nil
	}
	m.ctx.Logger.Info("sqlite store closing")
	return m.storage.Close()
}

// Storage returns the provisioned storage.
func (m *Module) Storage() *Storage { return m.storage }
