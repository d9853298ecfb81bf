package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/pkg/app"
	"github.com/flemzord/recall/pkg/memory"
)

func memoriesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"memory", "mem"},
		Short:   "Search and manage stored memories",
	}

	var (
		topK       int
		modalities []string
		minImp     float64
	)
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := parseModalities(modalities)
			if err != nil {
				return err
			}
			req := engram.SearchRequest{
				Query:      strings.Join(args, " "),
				TopK:       topK,
				Modalities: mods,
			}
			if cmd.Flags().Changed("min-importance") {
				req.ImportanceThreshold = &minImp
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				resp, err := rt.Client.SearchMemories(cmd.Context(), req)
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), resp, func() string {
					return renderer(cmd.OutOrStdout(), rt).Memories(resp.Memories)
				})
			})
		},
	}
	search.Flags().IntVarP(&topK, "top", "k", 10, "Number of results (1-100)")
	search.Flags().StringSliceVarP(&modalities, "type", "t", nil, "Restrict to modalities (text, web, pdf, image, video, chat)")
	search.Flags().Float64Var(&minImp, "min-importance", 0, "Minimum importance (0..1)")

	var (
		limit, offset int
		all           bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored memories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				f := engram.MemoryFilter{Limit: limit, Offset: offset}
				if all {
					activeOnly := false
					f.ActiveOnly = &activeOnly
				}
				page, err := rt.Client.ListMemories(cmd.Context(), f)
				if err != nil {
					return err
				}
				return g.emit(cmd.OutOrStdout(), page, func() string {
					return renderer(cmd.OutOrStdout(), rt).Memories(page.Memories) +
						fmt.Sprintf("\n%d-%d of %d", page.Offset+1, page.Offset+len(page.Memories), page.TotalCount)
				})
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")
	list.Flags().BoolVar(&all, "all", false, "Include inactive memories")

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete memories by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				var errs []error
				for _, id := range args {
					if err := rt.Client.DeleteMemory(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}

	cmd.AddCommand(search, list, del)
	return cmd
}

func ingestCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Queue content for ingestion",
	}

	var (
		typ                string
		chunkSize, overlap int
		wait               bool
	)
	addChunkFlags := func(c *cobra.Command, defType string) {
		c.Flags().StringVarP(&typ, "type", "t", defType, "Content modality")
		c.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size (service default when 0)")
		c.Flags().IntVar(&overlap, "chunk-overlap", 0, "Chunk overlap (service default when 0)")
		c.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for processing to finish")
	}

	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Ingest a web page or remote document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := memory.ParseModality(typ)
			if err != nil {
				return err
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				job, err := rt.Client.IngestURL(cmd.Context(), engram.IngestURLRequest{
					URL: args[0], Type: m, ChunkSize: chunkSize, ChunkOverlap: overlap,
				})
				if err != nil {
					return err
				}
				return g.reportJob(cmd, rt, job, wait)
			})
		},
	}
	addChunkFlags(urlCmd, string(memory.ModalityWeb))

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := modalityForFile(args[0], typ, cmd.Flags().Changed("type"))
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				job, err := rt.Client.IngestFile(cmd.Context(), engram.IngestFileRequest{
					Filename: filepath.Base(args[0]), Type: m, Content: content,
					ChunkSize: chunkSize, ChunkOverlap: overlap,
				})
				if err != nil {
					return err
				}
				return g.reportJob(cmd, rt, job, wait)
			})
		},
	}
	addChunkFlags(fileCmd, string(memory.ModalityText))

	var platform string
	chatExport := &cobra.Command{
		Use:   "chat <export.json>",
		Short: "Ingest a chat export (a JSON array of messages)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readChatExport(args[0])
			if err != nil {
				return err
			}
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				job, err := rt.Client.IngestChat(cmd.Context(), engram.IngestChatRequest{
					Platform: platform,
					Items:    items,
					Metadata: map[string]any{"source_file": filepath.Base(args[0])},
				})
				if err != nil {
					return err
				}
				return g.reportJob(cmd, rt, job, wait)
			})
		},
	}
	chatExport.Flags().StringVarP(&platform, "platform", "p", "chatgpt", "Platform the export came from")
	chatExport.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for processing to finish")

	cmd.AddCommand(urlCmd, fileCmd, chatExport)
	return cmd
}

func jobsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingestion jobs",
	}
	var wait bool
	status := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the processing state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				return g.reportJob(cmd, rt, engram.Job{JobID: args[0]}, wait)
			})
		},
	}
	status.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job finishes")
	cmd.AddCommand(status)
	return cmd
}

const jobPollInterval = 2 * time.Second

// reportJob prints the job's status, polling until it is terminal when
// wait is set.
func (g *globals) reportJob(cmd *cobra.Command, rt *app.Runtime, job engram.Job, wait bool) error {
	out := cmd.OutOrStdout()
	r := renderer(out, rt)
	st, err := pollJob(cmd.Context(), rt.Client, job.JobID, wait, jobPollInterval, func(st engram.JobStatus) {
		if wait && !g.jsonOut {
			fmt.Fprintln(out, r.Job(st))
		}
	})
	if err != nil {
		return err
	}
	if wait && !g.jsonOut {
		return nil
	}
	return g.emit(out, st, func() string { return r.Job(st) })
}

type statusFetcher interface {
	ProcessingStatus(ctx context.Context, jobID string) (engram.JobStatus, error)
}

func pollJob(ctx context.Context, c statusFetcher, id string, wait bool, every time.Duration, progress func(engram.JobStatus)) (engram.JobStatus, error) {
	for {
		st, err := c.ProcessingStatus(ctx, id)
		if err != nil {
			return st, err
		}
		progress(st)
		if !wait || st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(every):
		}
	}
}

func parseModalities(raw []string) ([]memory.Modality, error) {
	var out []memory.Modality
	for _, s := range raw {
		m, err := memory.ParseModality(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// modalityForFile guesses the modality from the extension unless one was
// given explicitly.
func modalityForFile(path, typ string, explicit bool) (memory.Modality, error) {
	if explicit {
		return memory.ParseModality(typ)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return memory.ModalityPDF, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return memory.ModalityImage, nil
	case ".mp4", ".mov", ".webm", ".mkv":
		return memory.ModalityVideo, nil
	case ".html", ".htm":
		return memory.ModalityWeb, nil
	default:
		return memory.ModalityText, nil
	}
}

// readChatExport accepts either a bare array of items or an object with an
// "items" array.
func readChatExport(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%s: not a chat export: %w", path, err)
	}
	if len(wrapped.Items) == 0 {
		return nil, fmt.Errorf("%s: no items", path)
	}
	return wrapped.Items, nil
}
