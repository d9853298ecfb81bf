// Package mcpserver exposes recall's memory search, chat and ingestion
// operations as Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/pkg/memory"
)

// Name is the server name announced during the MCP handshake.
const Name = "recall"

const (
	defaultTopK = 10
	maxTopK     = 100
)

// MemoryAPI is the part of the memory service client the tools call.
type MemoryAPI interface {
	SearchMemories(ctx context.Context, req engram.SearchRequest) (engram.SearchResponse, error)
	IngestURL(ctx context.Context, req engram.IngestURLRequest) (engram.Job, error)
	ProcessingStatus(ctx context.Context, jobID string) (engram.JobStatus, error)
}

// JobTracker follows ingestion jobs started through a tool.
type JobTracker interface {
	Track(jobID, label string)
}

// Deps are the collaborators behind the tools. Memory is required;
// without a Controller the chat and list_sessions tools are not offered.
type Deps struct {
	Memory     MemoryAPI
	Controller *chat.Controller
	Jobs       JobTracker
	Logger     *slog.Logger
}

// Server is an MCP server with recall's tools registered.
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *slog.Logger
	tools  []string
}

// New builds the server and registers every tool its deps support.
func New(version string, deps Deps) (*Server, error) {
	if deps.Memory == nil {
		return nil, errors.New("mcpserver: memory client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:    server.NewMCPServer(Name, version, server.WithToolCapabilities(true)),
		deps:   deps,
		logger: logger.With("component", "mcp"),
	}
	s.registerMemoryTools()
	if deps.Controller != nil {
		s.registerChatTools()
	}
	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Tools lists registered tool names in registration order.
func (s *Server) Tools() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// ServeStdio serves the protocol on stdin/stdout until EOF or a signal.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.tools))
	return server.ServeStdio(s.mcp)
}

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, h)
	s.tools = append(s.tools, tool.Name)
}

func (s *Server) registerMemoryTools() {
	s.add(mcp.NewTool("search_memories",
		mcp.WithDescription("Semantic search over the user's stored memories. Returns scored memories with text, modality, importance and source."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query text")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return (1-100, default 10)")),
		mcp.WithString("modalities", mcp.Description("Comma-separated modalities to restrict to (text, web, pdf, image, video, chat)")),
	), s.handleSearch)

	s.add(mcp.NewTool("ingest_url",
		mcp.WithDescription("Queue a web page or document URL for ingestion into memory. Returns the processing job id."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL")),
		mcp.WithString("type", mcp.Description("Content modality, default web")),
	), s.handleIngestURL)

	s.add(mcp.NewTool("job_status",
		mcp.WithDescription("Report the processing state of an ingestion job."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id returned by ingest_url")),
	), s.handleJobStatus)
}

func (s *Server) registerChatTools() {
	s.add(mcp.NewTool("chat",
		mcp.WithDescription("Send a message in the active recall conversation and return the memory-grounded reply. A session is created when none is active."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
	), s.handleChat)

	s.add(mcp.NewTool("list_sessions",
		mcp.WithDescription("List saved chat sessions, most recently updated first."),
	), s.handleListSessions)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	topK := defaultTopK
	if v, ok := req.GetArguments()["top_k"].(float64); ok && v >= 1 && v <= maxTopK {
		topK = int(v)
	}
	modalities, err := parseModalities(req.GetString("modalities", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.deps.Memory.SearchMemories(ctx, engram.SearchRequest{
		Query:      query,
		TopK:       topK,
		Modalities: modalities,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"memories": resp.Memories,
		"count":    len(resp.Memories),
		"total":    resp.TotalFound,
	})
}

func (s *Server) handleIngestURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ := memory.ModalityWeb
	if v := req.GetString("type", ""); v != "" {
		if typ, err = memory.ParseModality(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	job, err := s.deps.Memory.IngestURL(ctx, engram.IngestURLRequest{URL: rawURL, Type: typ})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	if s.deps.Jobs != nil && job.JobID != "" {
		s.deps.Jobs.Track(job.JobID, "Ingestion of "+rawURL)
	}
	s.logger.Info("ingestion queued", "job_id", job.JobID, "url", rawURL)
	return jsonResult(job)
}

func (s *Server) handleJobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.deps.Memory.ProcessingStatus(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}
	return jsonResult(st)
}

func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctrl := s.deps.Controller
	reveal, err := ctrl.SendMessage(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if reveal == nil {
		return mcp.NewToolResultError("active session changed; the reply was saved to its original session"), nil
	}
	select {
	case <-reveal.Done():
	case <-ctx.Done():
		reveal.Cancel()
		return mcp.NewToolResultError(ctx.Err().Error()), nil
	}
	return jsonResult(map[string]any{
		"session_id": reveal.SessionID(),
		"reply":      reveal.Content(),
		"context":    ctrl.Store().Projection().Context,
	})
}

func (s *Server) handleListSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := s.deps.Controller.Store()
	current := store.CurrentSessionID()

	type entry struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages int    `json:"messages"`
		Active   bool   `json:"active"`
	}
	list := store.SessionList()
	out := make([]entry, 0, len(list))
	for _, sess := range list {
		out = append(out, entry{
			ID:       sess.ID,
			Title:    sess.Title,
			Messages: len(sess.Messages),
			Active:   sess.ID == current,
		})
	}
	return jsonResult(map[string]any{"sessions": out, "current": current})
}

func parseModalities(raw string) ([]memory.Modality, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []memory.Modality
	for _, part := range strings.Split(raw, ",") {
		m, err := memory.ParseModality(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
