// Package engram is a typed HTTP client for the Engram memory service.
// Every call is authenticated with a bearer API key, bound to the caller's
// context, traced with OpenTelemetry and counted in Prometheus. Failures are
// returned once; there is no automatic retry.
package engram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

// Defaults applied by New.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// ClientService is the service name under which the application
// publishes its *Client to modules.
const ClientService = "engram.client"

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("engram: api key is required")

// Config holds connection settings and the default tenant/user identity.
type Config struct {
	BaseURL  string
	APIKey   string
	TenantID string
	UserID   string
	Timeout  time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left
// untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client calls the memory service API. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := validateHTTPURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("engram: base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = defaultTracer()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "engram")
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// WithIdentity returns a copy of c that acts for another tenant and user.
// Empty arguments keep the current value.
func (c *Client) WithIdentity(tenantID, userID string) *Client {
	cp := *c
	if tenantID != "" {
		cp.cfg.TenantID = tenantID
	}
	if userID != "" {
		cp.cfg.UserID = userID
	}
	return &cp
}

func (c *Client) identity(tenantID, userID string) (string, string) {
	if tenantID == "" {
		tenantID = c.cfg.TenantID
	}
	if userID == "" {
		userID = c.cfg.UserID
	}
	return tenantID, userID
}

// newHTTPRequest creates an authenticated request. A nil payload sends no body.
func (c *Client) newHTTPRequest(ctx context.Context, method, path string, query url.Values, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("engram: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("engram: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return req, nil
}

// send executes req and decodes a 2xx JSON body into out (when non-nil).
// The response body is limited to maxResponseSize bytes.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("engram: read response: %w", err)
	}
	if httpErr := mapHTTPError(resp.StatusCode, body); httpErr != nil {
		return httpErr
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("engram: unmarshal response: %w", err)
	}
	return nil
}

// call is the traced request path shared by every JSON endpoint.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, payload, out any) (err error) {
	ctx, finish := c.observe(ctx, op, method, path)
	defer finish(&err)

	req, err := c.newHTTPRequest(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if err = c.send(req, out); err != nil {
		c.logger.Debug("request failed", "op", op, "error", err)
	}
	return err
}

// Chat sends a retrieval-augmented chat turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	req.TenantID, req.UserID = c.identity(req.TenantID, req.UserID)
	if err := req.validate(); err != nil {
		return ChatResponse{}, err
	}
	var resp ChatResponse
	err := c.call(ctx, "chat", http.MethodPost, "/v1/chat/", nil, req, &resp)
	return resp, err
}

// ListMemories pages through stored memories.
func (c *Client) ListMemories(ctx context.Context, f MemoryFilter) (MemoryList, error) {
	tenantID, userID := c.identity(f.TenantID, f.UserID)
	if f.Limit < 0 || f.Limit > 1000 {
		return MemoryList{}, invalid("limit %d outside 1..1000", f.Limit)
	}
	if f.Offset < 0 {
		return MemoryList{}, invalid("offset %d is negative", f.Offset)
	}
	q := url.Values{"tenant_id": {tenantID}}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.ActiveOnly != nil {
		q.Set("active_only", strconv.FormatBool(*f.ActiveOnly))
	}
	var list MemoryList
	err := c.call(ctx, "list_memories", http.MethodGet, "/admin/memories", q, nil, &list)
	return list, err
}

// SearchMemories runs a filtered semantic search.
func (c *Client) SearchMemories(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	req.TenantID, req.UserID = c.identity(req.TenantID, req.UserID)
	if err := req.validate(); err != nil {
		return SearchResponse{}, err
	}
	var resp SearchResponse
	err := c.call(ctx, "search_memories", http.MethodPost, "/v1/memories/search", nil, req, &resp)
	return resp, err
}

// UpsertMemories stores raw texts as memories.
func (c *Client) UpsertMemories(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	req.TenantID, req.UserID = c.identity(req.TenantID, req.UserID)
	if err := req.validate(); err != nil {
		return UpsertResult{}, err
	}
	var res UpsertResult
	err := c.call(ctx, "upsert_memories", http.MethodPost, "/v1/memories/upsert", nil, req, &res)
	return res, err
}

// DeleteMemory removes one memory.
func (c *Client) DeleteMemory(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("memory id must not be empty")
	}
	tenantID, userID := c.identity("", "")
	q := url.Values{"tenant_id": {tenantID}, "user_id": {userID}}
	return c.call(ctx, "delete_memory", http.MethodDelete, "/admin/memories/"+url.PathEscape(id), q, nil, nil)
}

// IngestURL queues ingestion of a remote document.
func (c *Client) IngestURL(ctx context.Context, req IngestURLRequest) (Job, error) {
	if err := req.validate(); err != nil {
		return Job{}, err
	}
	var job Job
	err := c.call(ctx, "ingest_url", http.MethodPost, "/v1/ingest/url", nil, req, &job)
	return job, err
}

// IngestChat queues ingestion of a chat export.
func (c *Client) IngestChat(ctx context.Context, req IngestChatRequest) (Job, error) {
	if err := req.validate(); err != nil {
		return Job{}, err
	}
	var job Job
	err := c.call(ctx, "ingest_chat", http.MethodPost, "/v1/ingest/chat", nil, req, &job)
	return job, err
}

// IngestFile uploads a file as multipart form data.
func (c *Client) IngestFile(ctx context.Context, req IngestFileRequest) (job Job, err error) {
	if err := req.validate(); err != nil {
		return Job{}, err
	}

	const path = "/v1/ingest/file"
	ctx, finish := c.observe(ctx, "ingest_file", http.MethodPost, path)
	defer finish(&err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{"type": string(req.Type)}
	if req.ChunkSize > 0 {
		fields["chunk_size"] = strconv.Itoa(req.ChunkSize)
	}
	if req.ChunkOverlap > 0 {
		fields["chunk_overlap"] = strconv.Itoa(req.ChunkOverlap)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Job{}, fmt.Errorf("engram: write form field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return Job{}, fmt.Errorf("engram: create form file: %w", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return Job{}, fmt.Errorf("engram: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Job{}, fmt.Errorf("engram: close multipart: %w", err)
	}

	httpReq, err := c.newHTTPRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return Job{}, err
	}
	httpReq.Body = io.NopCloser(&buf)
	httpReq.ContentLength = int64(buf.Len())
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.send(httpReq, &job)
	return job, err
}

// ProcessingStatus reports the state of an ingestion job.
func (c *Client) ProcessingStatus(ctx context.Context, jobID string) (JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return JobStatus{}, invalid("job id must not be empty")
	}
	var st JobStatus
	err := c.call(ctx, "processing_status", http.MethodGet, "/v1/memories/processing/status",
		url.Values{"job_id": {jobID}}, nil, &st)
	return st, err
}

// CreateKey mints an API key. The raw key is only returned here.
func (c *Client) CreateKey(ctx context.Context, req CreateKeyRequest) (CreatedKey, error) {
	req.TenantID, req.UserID = c.identity(req.TenantID, req.UserID)
	if err := req.validate(); err != nil {
		return CreatedKey{}, err
	}
	if req.Scopes == nil {
		req.Scopes = []string{}
	}
	var key CreatedKey
	err := c.call(ctx, "create_key", http.MethodPost, "/v1/keys", nil, req, &key)
	return key, err
}

// ListKeys lists the API keys of the configured identity.
func (c *Client) ListKeys(ctx context.Context) ([]APIKey, error) {
	tenantID, userID := c.identity("", "")
	q := url.Values{"tenant_id": {tenantID}}
	if userID != "" {
		q.Set("user_id", userID)
	}
	var resp struct {
		Keys []APIKey `json:"keys"`
	}
	if err := c.call(ctx, "list_keys", http.MethodGet, "/v1/keys", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// DeleteKey revokes an API key.
func (c *Client) DeleteKey(ctx context.Context, keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return invalid("key id must not be empty")
	}
	tenantID, _ := c.identity("", "")
	return c.call(ctx, "delete_key", http.MethodDelete, "/v1/keys/"+url.PathEscape(keyID),
		url.Values{"tenant_id": {tenantID}}, nil, nil)
}

// SyncConnector starts a connector synchronisation job.
func (c *Client) SyncConnector(ctx context.Context, req ConnectorSyncRequest) (ConnectorSync, error) {
	if err := req.validate(); err != nil {
		return ConnectorSync{}, err
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}
	var resp ConnectorSync
	err := c.call(ctx, "sync_connector", http.MethodPost, "/v1/connectors/sync", nil, req, &resp)
	return resp, err
}

// ConnectorSources lists syncable data sources.
func (c *Client) ConnectorSources(ctx context.Context) ([]ConnectorSource, error) {
	var resp struct {
		Sources []ConnectorSource `json:"sources"`
	}
	if err := c.call(ctx, "connector_sources", http.MethodGet, "/v1/connectors/sources", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// AnalyticsOverview returns usage statistics for the configured identity.
func (c *Client) AnalyticsOverview(ctx context.Context) (AnalyticsOverview, error) {
	tenantID, userID := c.identity("", "")
	var ov AnalyticsOverview
	err := c.call(ctx, "analytics_overview", http.MethodGet, "/v1/analytics/overview",
		url.Values{"tenant_id": {tenantID}, "user_id": {userID}}, nil, &ov)
	return ov, err
}

// GraphSearch finds knowledge-graph entities by name.
func (c *Client) GraphSearch(ctx context.Context, req GraphSearchRequest) (GraphSearchResponse, error) {
	if err := validateQuery(req.Entity); err != nil {
		return GraphSearchResponse{}, err
	}
	tenantID, userID := c.identity("", "")
	q := url.Values{"tenant_id": {tenantID}, "user_id": {userID}, "entity": {req.Entity}}
	if req.EntityType != "" {
		q.Set("entity_type", req.EntityType)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	var resp GraphSearchResponse
	err := c.call(ctx, "graph_search", http.MethodGet, "/v1/graph/search", q, nil, &resp)
	return resp, err
}

// Subgraph returns the neighbourhood of a seed entity.
func (c *Client) Subgraph(ctx context.Context, req SubgraphRequest) (Subgraph, error) {
	if req.Radius < 0 || req.MaxNodes < 0 {
		return Subgraph{}, invalid("radius and max_nodes must not be negative")
	}
	tenantID, userID := c.identity("", "")
	q := url.Values{"tenant_id": {tenantID}, "user_id": {userID}}
	if req.SeedLabel != "" {
		q.Set("seed_label", req.SeedLabel)
	}
	if req.Radius > 0 {
		q.Set("radius", strconv.Itoa(req.Radius))
	}
	if req.MaxNodes > 0 {
		q.Set("max_nodes", strconv.Itoa(req.MaxNodes))
	}
	var g Subgraph
	err := c.call(ctx, "subgraph", http.MethodGet, "/v1/graph/subgraph", q, nil, &g)
	return g, err
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.call(ctx, "health", http.MethodGet, "/health", nil, nil, &h)
	return h, err
}
