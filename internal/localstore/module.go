package localstore

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
)

// StorageService is the service name under which every store module
// publishes its persist.Storage.
const StorageService = "store.storage"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)

// ModuleConfig configures the file store module.
type ModuleConfig struct {
	// Dir holds one JSON file per store. Defaults to {DataDir}/state.
	Dir string `yaml:"dir"`
}

// Module publishes a FileStorage as the application's state storage.
type Module struct {
	config  ModuleConfig
	storage *FileStorage
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.file",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("localstore: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.config.Dir == "" {
		m.config.Dir = filepath.Join(ctx.DataDir, "state")
	}
	m.storage = NewFileStorage(m.config.Dir)
	ctx.RegisterService(StorageService, m.storage)
	ctx.Logger.Info("file store provisioned", "dir", m.config.Dir)
	return nil
}

// Storage returns the provisioned storage.
func (m *Module) Storage() *FileStorage { return m.storage }
