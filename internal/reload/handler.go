package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/security"
)

// ErrRestartRequired is returned when the new config selects a different
// set of modules. Modules can be reconfigured live, not added or removed.
var ErrRestartRequired = errors.New("reload: module set changed, restart required")

// Applier pushes non-module settings (chat tuning, log level) from a
// freshly validated config into the running process.
type Applier func(cfg *config.Config) error

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app      *core.App
	logger   *slog.Logger
	dataDir  string
	appliers []Applier
	audit    *security.AuditLogger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithApplier registers fn to run after modules reload successfully.
func WithApplier(fn Applier) HandlerOption {
	return func(h *Handler) { h.appliers = append(h.appliers, fn) }
}

// WithAuditLogger records every successful reload.
func WithAuditLogger(a *security.AuditLogger) HandlerOption {
	return func(h *Handler) { h.audit = a }
}

// NewHandler creates a reload handler.
func NewHandler(app *core.App, logger *slog.Logger, dataDir string, opts ...HandlerOption) *Handler {
	h := &Handler{
		app:     app,
		logger:  logger.With("component", "reload"),
		dataDir: dataDir,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := h.handleReload(ctx, cfg); err != nil {
		return err
	}
	h.audit.Log(security.AuditEvent{
		Type:   security.EventConfigReload,
		Target: configPath,
	})
	return nil
}

// HandleReloadFromConfig reloads from an already-validated config.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	if added, removed := h.moduleDiff(config.Resolve(cfg)); len(added) > 0 || len(removed) > 0 {
		h.logger.Warn("module set changed", "added", added, "removed", removed)
		return ErrRestartRequired
	}

	appCtx := core.NewAppContext(h.logger, h.dataDir).WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	var errs []error
	for _, apply := range h.appliers {
		if err := apply(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("applying config: %w", err)
	}

	h.logger.Info("configuration reloaded successfully")
	return nil
}

// moduleDiff compares wanted IDs with the registered modules currently
// loaded. Modules added programmatically (not from the registry) are ignored.
func (h *Handler) moduleDiff(wanted []string) (added, removed []string) {
	var loaded []string
	for _, id := range h.app.ModuleIDs() {
		if _, ok := core.GetModule(id); ok {
			loaded = append(loaded, id)
		}
	}
	for _, id := range wanted {
		if !slices.Contains(loaded, id) {
			added = append(added, id)
		}
	}
	for _, id := range loaded {
		if !slices.Contains(wanted, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}
