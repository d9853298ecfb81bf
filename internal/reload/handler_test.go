package reload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/security"
)

func init() {
	core.RegisterModule(&reloadable{})
}

// reloadable records every Reload call.
type reloadable struct {
	reloads int
	seen    yaml.Node
}

func (m *reloadable) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.reloadtest",
		New: func() core.Module { return &reloadable{} },
	}
}

func (m *reloadable) Reload(ctx *core.AppContext) error {
	m.reloads++
	m.seen, _ = ctx.ModuleConfig("store.reloadtest")
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) (*core.App, *reloadable) {
	t.Helper()
	app := core.NewApp(core.NewAppContext(testLogger(), t.TempDir()))
	cfg := &config.Config{Modules: map[string]yaml.Node{"store.reloadtest": {}}}
	if err := app.LoadModules(config.Resolve(cfg)); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	mod, _ := app.Module("store.reloadtest")
	return app, mod.(*reloadable)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandler_FileNotFound(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)
	h := NewHandler(app, testLogger(), t.TempDir())

	if err := h.HandleReload(context.Background(), "/nonexistent/recall.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_InvalidConfig(t *testing.T) {
	t.Parallel()
	app, mod := newTestApp(t)
	h := NewHandler(app, testLogger(), t.TempDir())

	path := writeFile(t, "version: \"2\"\nmodules:\n  store.reloadtest: {}\n")
	if err := h.HandleReload(context.Background(), path); err == nil {
		t.Error("expected validation error")
	}
	if mod.reloads != 0 {
		t.Errorf("module reloaded %d times on invalid config", mod.reloads)
	}
}

func TestHandler_ReloadsModulesAndAppliers(t *testing.T) {
	t.Parallel()
	app, mod := newTestApp(t)

	var applied *config.Config
	var audit bytes.Buffer
	h := NewHandler(app, testLogger(), t.TempDir(),
		WithApplier(func(cfg *config.Config) error {
			applied = cfg
			return nil
		}),
		WithAuditLogger(security.NewAuditLogger(security.AuditLoggerConfig{Writer: &audit})),
	)

	path := writeFile(t, "version: \"1\"\nchat:\n  temperature: 0.2\nmodules:\n  store.reloadtest:\n    dir: /var/lib/recall\n")
	if err := h.HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if mod.reloads != 1 {
		t.Errorf("reloads = %d, want 1", mod.reloads)
	}
	if mod.seen.Kind != yaml.MappingNode {
		t.Error("module did not receive its new config")
	}
	if applied == nil || applied.Chat.Temperature != 0.2 {
		t.Errorf("applier got %+v", applied)
	}
	if !strings.Contains(audit.String(), string(security.EventConfigReload)) {
		t.Errorf("audit log missing reload event: %q", audit.String())
	}
}

func TestHandler_ModuleSetChange(t *testing.T) {
	t.Parallel()
	app, mod := newTestApp(t)
	h := NewHandler(app, testLogger(), t.TempDir())

	// No store listed: resolves to the default store, which is not loaded.
	cfg := config.Default()
	err := h.HandleReloadFromConfig(context.Background(), cfg)
	if !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("err = %v, want ErrRestartRequired", err)
	}
	if mod.reloads != 0 {
		t.Error("modules must not reload when the module set changes")
	}
}

func TestHandler_ApplierError(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)
	boom := errors.New("boom")
	h := NewHandler(app, testLogger(), t.TempDir(),
		WithApplier(func(*config.Config) error { return boom }))

	cfg := config.Default()
	cfg.Modules = map[string]yaml.Node{"store.reloadtest": {}}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestHandler_CancelledContext(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)
	h := NewHandler(app, testLogger(), t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.HandleReloadFromConfig(ctx, config.Default()); err == nil {
		t.Error("expected error for cancelled context")
	}
}
