package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns the loaded modules and drives their lifecycle.
type App struct {
	ctx     *AppContext
	modules []*loaded
	logger  *slog.Logger
}

type loaded struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp returns an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads ids in order. On failure every module loaded so far is
// released and the App is left empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.release()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.Add(mod)
		a.logger.Debug("module loaded", "module", id)
	}
	return nil
}

// Add appends a module built outside the registry.
func (a *App) Add(mod Module) {
	a.modules = append(a.modules, &loaded{id: mod.ModuleInfo().ID, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, l := range a.modules {
		if string(l.id) == id {
			return l.module, true
		}
	}
	return nil, false
}

// ModuleIDs lists loaded modules in load order.
func (a *App) ModuleIDs() []string {
	ids := make([]string, len(a.modules))
	for i, l := range a.modules {
		ids[i] = string(l.id)
	}
	return ids
}

// Start starts Starter modules in load order. If one fails, those already
// running are stopped again.
func (a *App) Start() error {
	for i, l := range a.modules {
		s, ok := l.module.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", l.id, "error", err)
			a.stop(a.modules[:i])
			return fmt.Errorf("starting module %s: %w", l.id, err)
		}
		l.running = true
		a.logger.Info("module started", "module", l.id)
	}
	return nil
}

// Stop stops running modules in reverse order, then closes every Closer.
func (a *App) Stop() {
	a.stop(a.modules)
	for i := len(a.modules) - 1; i >= 0; i-- {
		l := a.modules[i]
		if c, ok := l.module.(Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Error("module close failed", "module", l.id, "error", err)
			}
		}
	}
}

func (a *App) stop(mods []*loaded) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(mods) - 1; i >= 0; i-- {
		l := mods[i]
		if !l.running {
			continue
		}
		l.running = false
		if s, ok := l.module.(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", l.id, "error", err)
			}
		}
	}
}

// release tears down modules that were loaded but never started.
func (a *App) release() {
	for i := len(a.modules) - 1; i >= 0; i-- {
		if c, ok := a.modules[i].module.(Closer); ok {
			_ = c.Close()
		}
	}
	a.modules = nil
}

// ReloadModules hands ctx to every Reloader and joins their errors.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, l := range a.modules {
		r, ok := l.module.(Reloader)
		if !ok {
			continue
		}
		if err := r.Reload(ctx.ForModule(l.id)); err != nil {
			errs = append(errs, fmt.Errorf("reloading module %s: %w", l.id, err))
			continue
		}
		a.logger.Info("module reloaded", "module", l.id)
	}
	return errors.Join(errs...)
}
