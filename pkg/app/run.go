package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/recall/internal/reload"
)

const stopTimeout = 30 * time.Second

// Run bootstraps the runtime, starts every module, and blocks until ctx
// is done or a shutdown signal arrives. SIGHUP and config file changes
// trigger a live reload; a reload that changes the module set is refused
// and logged.
func Run(ctx context.Context, opts Options) error {
	rt, err := Bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			rt.Logger.Error("shutdown error", "error", err)
		}
	}()
	return rt.Serve(ctx)
}

// Serve starts the runtime's modules and runs the signal and reload loop
// until ctx is done or SIGINT/SIGTERM arrives. The caller still owns Close.
func (rt *Runtime) Serve(ctx context.Context) error {
	handler := reload.NewHandler(rt.App, rt.Logger, rt.Config.DataDir,
		reload.WithApplier(rt.ApplyConfig),
		reload.WithAuditLogger(rt.Audit),
	)

	if err := rt.Start(); err != nil {
		return err
	}
	rt.Logger.Info("recall started", "modules", rt.App.ModuleIDs())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()

	var events <-chan reload.Event
	if rt.ConfigPath != "" {
		watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: rt.ConfigPath})
		watcher.Start(watchCtx)
		defer watcher.Stop()
		events = watcher.Events()
	}

	for {
		select {
		case <-ctx.Done():
			rt.Logger.Info("shutdown requested")
			return nil
		case sig := <-sigCh:
			if sig != syscall.SIGHUP {
				rt.Logger.Info("shutdown signal received", "signal", sig.String())
				return nil
			}
			rt.Logger.Info("SIGHUP received, reloading configuration")
			rt.reload(watchCtx, handler)
		case evt := <-events:
			rt.Logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			rt.reload(watchCtx, handler)
		}
	}
}

func (rt *Runtime) reload(ctx context.Context, handler *reload.Handler) {
	if rt.ConfigPath == "" {
		rt.Logger.Warn("no config file to reload from")
		return
	}
	err := handler.HandleReload(ctx, rt.ConfigPath)
	switch {
	case err == nil:
		rt.Notifier.Success("Configuration reloaded")
	case errors.Is(err, reload.ErrRestartRequired):
		rt.Logger.Warn("reload needs a restart", "error", err)
		rt.Notifier.Error("Module changes need a restart")
	default:
		rt.Logger.Error("reload failed", "error", err)
		rt.Notifier.Error("Reload failed: " + err.Error())
	}
}

// ResolveConfigPath searches the standard locations for a config file:
// $XDG_CONFIG_HOME/recall/recall.yaml (or ~/.config/recall/recall.yaml),
// then ./recall.yaml.
func ResolveConfigPath() (string, error) {
	candidates := configCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `recall init` writes a new config.
func DefaultConfigPath() string {
	return configCandidates()[0]
}

func configCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "recall", "recall.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "recall", "recall.yaml"))
	}
	return append(candidates, "recall.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/recall, or ~/.local/share/recall.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "recall")
}
