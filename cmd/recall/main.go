// Package main is the entry point for the recall CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/tui"
	"github.com/flemzord/recall/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	dataDir    string
	logLevel   string
	jsonOut    bool
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Chat with your memories and manage the Engram memory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to configuration file")
	pf.StringVar(&g.dataDir, "data-dir", "", "Directory for local state")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&g.jsonOut, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		versionCmd(),
		initCmd(g),
		configCmd(g),
		serveCmd(g),
		serviceCmd(g),
		chatCmd(g),
		sessionsCmd(g),
		memoriesCmd(g),
		ingestCmd(g),
		jobsCmd(g),
		keysCmd(g),
		connectorsCmd(g),
		analyticsCmd(g),
		graphCmd(g),
		mcpCmd(g),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recall %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

// runtime bootstraps the application for a one-shot command. Unless a
// level was requested, logging is kept to warnings so command output
// stays readable.
func (g *globals) runtime(cmd *cobra.Command, offline bool) (*app.Runtime, error) {
	level := g.logLevel
	if level == "" {
		level = "warn"
	}
	return app.Bootstrap(cmd.Context(), app.Options{
		ConfigPath: g.configPath,
		DataDir:    g.dataDir,
		LogLevel:   level,
		LogOutput:  cmd.ErrOrStderr(),
		Version:    version,
		Offline:    offline,
	})
}

// withRuntime runs fn against a bootstrapped runtime and always closes it.
func (g *globals) withRuntime(cmd *cobra.Command, offline bool, fn func(*app.Runtime) error) error {
	rt, err := g.runtime(cmd, offline)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return fn(rt)
}

func renderer(w io.Writer, rt *app.Runtime) *tui.Renderer {
	theme := prefs.ThemeSystem
	if rt != nil && rt.Prefs != nil {
		theme = rt.Prefs.Get().Theme
	}
	return tui.New(w, theme, 0)
}

// emit prints v as indented JSON when --json is set and text otherwise.
func (g *globals) emit(w io.Writer, v any, text func() string) error {
	if g.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
