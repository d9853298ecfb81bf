package main

import (
	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/mcpserver"
	"github.com/flemzord/recall/pkg/app"
)

func mcpCmd(g *globals) *cobra.Command {
	var noChat bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve memory tools to an MCP client over stdio",
		Long: `Serve recall's tools (search_memories, ingest_url, job_status, chat,
list_sessions) over the Model Context Protocol on stdin/stdout.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				deps := mcpserver.Deps{
					Memory: rt.Client,
					Logger: rt.Logger,
				}
				if !noChat {
					deps.Controller = rt.Controller
				}
				srv, err := mcpserver.New(version, deps)
				if err != nil {
					return err
				}
				rt.Logger.Info("mcp server ready", "tools", srv.Tools())
				return srv.ServeStdio()
			})
		},
	}
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "Only offer the memory tools")
	return cmd
}
