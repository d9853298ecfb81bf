package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/pkg/app"
)

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				path = resolved
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK\n", path)
			fmt.Fprintf(out, "  api:     %s (tenant %s, user %s)\n", cfg.API.BaseURL, cfg.API.TenantID, cfg.API.UserID)
			if cfg.API.APIKey == "" {
				fmt.Fprintln(out, "  warning: no API key configured")
			}
			fmt.Fprintln(out, "  modules:")
			for _, id := range config.Resolve(cfg) {
				fmt.Fprintf(out, "    %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func serveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured modules (gateway, scheduler) until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), app.Options{
				ConfigPath: g.configPath,
				DataDir:    g.dataDir,
				LogLevel:   g.logLevel,
				LogOutput:  cmd.ErrOrStderr(),
				Version:    version,
			})
		},
	}
}

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	opts   app.Options
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.Run(ctx, p.opts) }()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(45 * time.Second):
		return fmt.Errorf("service did not stop in time")
	}
}

func serviceConfig(configPath, dataDir string) *service.Config {
	args := []string{"service", "run"}
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
		args = append(args, "--config", configPath)
	}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	return &service.Config{
		Name:        "recall",
		DisplayName: "recall",
		Description: "recall memory chat gateway and scheduler",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	}
}

func serviceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status|run>",
		Short:     "Manage recall as a background service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(append([]string{}, service.ControlAction[:]...), "status", "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			prg := &program{opts: app.Options{
				ConfigPath: g.configPath,
				DataDir:    g.dataDir,
				LogLevel:   g.logLevel,
				Version:    version,
			}}
			svc, err := service.New(prg, serviceConfig(g.configPath, g.dataDir))
			if err != nil {
				return err
			}

			switch action := args[0]; action {
			case "run":
				return svc.Run()
			case "status":
				st, err := svc.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
				return nil
			default:
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: done\n", action)
				return nil
			}
		},
	}
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
