package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/pkg/app"
)

func keysCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	var (
		scopes []string
		ttl    time.Duration
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key (the secret is printed once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engram.CreateKeyRequest{Name: args[0], Scopes: scopes}
			if ttl > 0 {
				exp := time.Now().Add(ttl).UTC()
				req.ExpiresAt = &exp
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				key, err := rt.Client.CreateKey(cmd.Context(), req)
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), key, func() string {
					return fmt.Sprintf("Created key %s\n\n  %s\n\nStore it now; it will not be shown again.", key.KeyID, key.APIKey)
				})
			})
		},
	}
	create.Flags().StringSliceVar(&scopes, "scope", []string{"read", "write"}, "Scopes granted to the key")
	create.Flags().DurationVar(&ttl, "expires-in", 0, "Lifetime of the key (no expiry when 0)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				keys, err := rt.Client.ListKeys(cmd.Context())
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), map[string]any{"keys": keys}, func() string {
					return renderer(cmd.OutOrStdout(), rt).Keys(keys)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				if err := rt.Client.DeleteKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func connectorsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connectors",
		Aliases: []string{"connector"},
		Short:   "Sync external data sources",
	}

	sources := &cobra.Command{
		Use:   "sources",
		Short: "List available connector sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				srcs, err := rt.Client.ConnectorSources(cmd.Context())
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), srcs, func() string {
					return renderer(cmd.OutOrStdout(), rt).Sources(srcs)
				})
			})
		},
	}

	var (
		settings []string
		full     bool
		wait     bool
	)
	sync := &cobra.Command{
		Use:   "sync <source>",
		Short: "Start a sync of one source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseSettings(settings)
			if err != nil {
				return err
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				resp, err := rt.Client.SyncConnector(cmd.Context(), engram.ConnectorSyncRequest{
					Source: args[0], Config: cfg, ForceFullSync: full,
				})
				if err != nil {
					return err
				}
				if wait && resp.JobID != "" {
					return g.reportJob(cmd, rt, engram.Job{JobID: resp.JobID}, true)
				}
				return g.emit(cmd.OutOrStdout(), resp, func() string {
					return fmt.Sprintf("Sync of %s queued as job %s (%s)", resp.Source, resp.JobID, resp.Status)
				})
			})
		},
	}
	sync.Flags().StringArrayVar(&settings, "set", nil, "Connector setting as key=value (repeatable)")
	sync.Flags().BoolVar(&full, "full", false, "Force a full resync")
	sync.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the sync job to finish")

	cmd.AddCommand(sources, sync)
	return cmd
}

func analyticsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show an overview of the memory base",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				a, err := rt.Client.AnalyticsOverview(cmd.Context())
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), a, func() string {
					return renderer(cmd.OutOrStdout(), rt).Analytics(a)
				})
			})
		},
	}
}

func graphCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the knowledge graph",
	}

	var (
		entityType string
		limit      int
	)
	search := &cobra.Command{
		Use:   "search <entity>",
		Short: "Find entities by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				resp, err := rt.Client.GraphSearch(cmd.Context(), engram.GraphSearchRequest{
					Entity: strings.Join(args, " "), EntityType: entityType, Limit: limit,
				})
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), resp, func() string {
					var b strings.Builder
					fmt.Fprintf(&b, "%d entities matching %q\n", resp.Total, resp.Query)
					for _, e := range resp.Entities {
						fmt.Fprintf(&b, "  %v (%v)\n", e["label"], e["type"])
					}
					return strings.TrimRight(b.String(), "\n")
				})
			})
		},
	}
	search.Flags().StringVarP(&entityType, "type", "t", "", "Restrict to an entity type")
	search.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entities")

	var radius, maxNodes int
	sub := &cobra.Command{
		Use:   "subgraph <label>",
		Short: "Print the neighbourhood of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				sg, err := rt.Client.Subgraph(cmd.Context(), engram.SubgraphRequest{
					SeedLabel: args[0], Radius: radius, MaxNodes: maxNodes,
				})
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), sg, func() string {
					return subgraphText(sg)
				})
			})
		},
	}
	sub.Flags().IntVarP(&radius, "radius", "r", 1, "Hops from the seed entity")
	sub.Flags().IntVar(&maxNodes, "max-nodes", 50, "Node cap")

	cmd.AddCommand(search, sub)
	return cmd
}

func subgraphText(sg engram.Subgraph) string {
	labels := make(map[string]string, len(sg.Nodes))
	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes, %d edges\n", len(sg.Nodes), len(sg.Edges))
	for _, n := range sg.Nodes {
		labels[fmt.Sprint(n["id"])] = fmt.Sprint(n["label"])
	}
	for _, e := range sg.Edges {
		from, to := fmt.Sprint(e["source"]), fmt.Sprint(e["target"])
		if l, ok := labels[from]; ok {
			from = l
		}
		if l, ok := labels[to]; ok {
			to = l
		}
		fmt.Fprintf(&b, "  %s -[%v]-> %s\n", from, e["type"], to)
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseSettings turns key=value pairs into a connector config. Values that
// parse as JSON (numbers, booleans, arrays) keep their type.
func parseSettings(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q (want key=value)", p)
		}
		var typed any
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			out[k] = typed
			continue
		}
		out[k] = v
	}
	return out, nil
}
