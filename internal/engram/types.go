package engram

import (
	"encoding/json"
	"time"

	"github.com/flemzord/recall/pkg/memory"
)

// Message is one chat turn sent to or received from the service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievalHints narrows the memories the service retrieves for a chat turn.
type RetrievalHints struct {
	Modalities []memory.Modality `json:"modalities,omitempty"`
	K          int               `json:"k,omitempty"`
}

// ChatRequest is the body of POST /v1/chat/. Tenant and user default to
// the client's configured identity when empty.
type ChatRequest struct {
	TenantID       string          `json:"tenant_id"`
	UserID         string          `json:"user_id"`
	Messages       []Message       `json:"messages"`
	RetrievalHints *RetrievalHints `json:"retrieval_hints,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
}

// ChatResponse is the assistant reply plus the memories used to ground it.
type ChatResponse struct {
	Message           Message         `json:"message"`
	MemoriesUsed      []memory.Memory `json:"memories_used"`
	ContextWindowUsed int             `json:"context_window_used"`
	RetrievalMetadata map[string]any  `json:"retrieval_metadata,omitempty"`
}

// Output returns the assistant text.
func (r ChatResponse) Output() string { return r.Message.Content }

// MemoryFilter selects memories for GET /admin/memories.
type MemoryFilter struct {
	TenantID   string
	UserID     string
	Limit      int
	Offset     int
	ActiveOnly *bool
}

// MemoryList is one page of memories.
type MemoryList struct {
	Memories   []memory.Memory `json:"memories"`
	TotalCount int             `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

// SearchRequest is the body of POST /v1/memories/search.
type SearchRequest struct {
	TenantID            string            `json:"tenant_id"`
	UserID              string            `json:"user_id"`
	Query               string            `json:"query"`
	TopK                int               `json:"top_k,omitempty"`
	Modalities          []memory.Modality `json:"modalities,omitempty"`
	ImportanceThreshold *float64          `json:"importance_threshold,omitempty"`
	DateRange           map[string]string `json:"date_range,omitempty"`
	Filters             map[string]any    `json:"filters,omitempty"`
}

// SearchResponse lists scored memories.
type SearchResponse struct {
	Memories       []memory.Memory `json:"memories"`
	TotalFound     int             `json:"total_found"`
	Query          string          `json:"query"`
	FiltersApplied map[string]any  `json:"filters_applied,omitempty"`
}

// IngestURLRequest is the body of POST /v1/ingest/url.
type IngestURLRequest struct {
	URL          string          `json:"url"`
	Type         memory.Modality `json:"type"`
	ChunkSize    int             `json:"chunk_size,omitempty"`
	ChunkOverlap int             `json:"chunk_overlap,omitempty"`
}

// IngestFileRequest describes a multipart upload to POST /v1/ingest/file.
type IngestFileRequest struct {
	Filename     string
	Type         memory.Modality
	Content      []byte
	ChunkSize    int
	ChunkOverlap int
}

// IngestChatRequest is the body of POST /v1/ingest/chat.
type IngestChatRequest struct {
	Platform string           `json:"platform"`
	Items    []map[string]any `json:"items"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Job is the acknowledgement returned by every ingestion endpoint.
type Job struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Job statuses reported by ProcessingStatus.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobStatus is the processing state of an ingestion job.
type JobStatus struct {
	JobID       string         `json:"job_id"`
	Status      string         `json:"status"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s.Status == JobCompleted || s.Status == JobFailed
}

// CreateKeyRequest is the body of POST /v1/keys.
type CreateKeyRequest struct {
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreatedKey carries the raw key. It is only ever returned once.
type CreatedKey struct {
	APIKey string `json:"api_key"`
	KeyID  string `json:"key_id"`
}

// APIKey is a key record without its secret.
type APIKey struct {
	ID         string   `json:"id"`
	TenantID   string   `json:"tenant_id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	Scopes     []string `json:"scopes"`
	Active     bool     `json:"active"`
	LastUsedAt string   `json:"last_used_at,omitempty"`
	ExpiresAt  string   `json:"expires_at,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// ConnectorSyncRequest is the body of POST /v1/connectors/sync.
type ConnectorSyncRequest struct {
	Source        string         `json:"source"`
	Config        map[string]any `json:"config"`
	ForceFullSync bool           `json:"force_full_sync,omitempty"`
}

// ConnectorSync acknowledges a connector sync job.
type ConnectorSync struct {
	JobID   string `json:"job_id"`
	Source  string `json:"source"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ConnectorSource describes one syncable data source.
type ConnectorSource struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RequiredConfig []string `json:"required_config"`
	OptionalConfig []string `json:"optional_config"`
}

// AnalyticsOverview summarises a user's memory base.
type AnalyticsOverview struct {
	TotalMemories   int              `json:"total_memories"`
	TotalRequests   int              `json:"total_requests"`
	RequestsLast24h int              `json:"requests_last_24h"`
	P95LatencyMS    float64          `json:"p95_latency_ms"`
	MemoryTypes     map[string]int   `json:"memory_types"`
	TopSources      []SourceCount    `json:"top_sources"`
	RecentActivity  []map[string]any `json:"recent_activity"`
}

// SourceCount is a memory count for one source URI.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// GraphSearchRequest queries GET /v1/graph/search.
type GraphSearchRequest struct {
	Entity     string
	EntityType string
	Limit      int
}

// GraphSearchResponse lists matching entities.
type GraphSearchResponse struct {
	Entities   []map[string]any `json:"entities"`
	Total      int              `json:"total"`
	Query      string           `json:"query"`
	EntityType string           `json:"entity_type,omitempty"`
}

// SubgraphRequest queries GET /v1/graph/subgraph.
type SubgraphRequest struct {
	SeedLabel string
	Radius    int
	MaxNodes  int
}

// Subgraph is a node/edge neighbourhood of the knowledge graph.
type Subgraph struct {
	Nodes    []map[string]any `json:"nodes"`
	Edges    []map[string]any `json:"edges"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Health is the service health report.
type Health struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

// wireMemory accepts the memory shapes the service returns: search and
// listing results carry "memory_id" and naive ISO timestamps, while other
// endpoints use "id".
type wireMemory struct {
	ID             string          `json:"id"`
	MemoryID       string          `json:"memory_id"`
	Text           string          `json:"text"`
	Modality       memory.Modality `json:"modality"`
	Importance     float64         `json:"importance"`
	CreatedAt      string          `json:"created_at"`
	LastAccessedAt string          `json:"last_accessed_at"`
	SourceURI      *string         `json:"source_uri"`
	Score          *float64        `json:"score"`
	Metadata       map[string]any  `json:"metadata"`
}

func (w wireMemory) memory() memory.Memory {
	id := w.ID
	if id == "" {
		id = w.MemoryID
	}
	return memory.Memory{
		ID:             id,
		Text:           w.Text,
		Modality:       w.Modality,
		Importance:     w.Importance,
		CreatedAt:      parseTime(w.CreatedAt),
		LastAccessedAt: parseTime(w.LastAccessedAt),
		SourceURI:      w.SourceURI,
		Score:          w.Score,
		Metadata:       w.Metadata,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTime accepts RFC 3339 and zone-less ISO timestamps (read as UTC).
// Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeMemories(raw []wireMemory) []memory.Memory {
	out := make([]memory.Memory, len(raw))
	for i, w := range raw {
		out[i] = w.memory()
	}
	return out
}

// UnmarshalJSON decodes memories through the lenient wire shape.
func (r *ChatResponse) UnmarshalJSON(b []byte) error {
	var w struct {
		Message           Message        `json:"message"`
		MemoriesUsed      []wireMemory   `json:"memories_used"`
		ContextWindowUsed int            `json:"context_window_used"`
		RetrievalMetadata map[string]any `json:"retrieval_metadata"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = ChatResponse{
		Message:           w.Message,
		MemoriesUsed:      decodeMemories(w.MemoriesUsed),
		ContextWindowUsed: w.ContextWindowUsed,
		RetrievalMetadata: w.RetrievalMetadata,
	}
	return nil
}

// UnmarshalJSON decodes memories through the lenient wire shape.
func (l *MemoryList) UnmarshalJSON(b []byte) error {
	var w struct {
		Memories   []wireMemory `json:"memories"`
		TotalCount int          `json:"total_count"`
		Limit      int          `json:"limit"`
		Offset     int          `json:"offset"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*l = MemoryList{
		Memories:   decodeMemories(w.Memories),
		TotalCount: w.TotalCount,
		Limit:      w.Limit,
		Offset:     w.Offset,
	}
	return nil
}

// UnmarshalJSON decodes memories through the lenient wire shape.
func (s *SearchResponse) UnmarshalJSON(b []byte) error {
	var w struct {
		Memories       []wireMemory   `json:"memories"`
		TotalFound     int            `json:"total_found"`
		Query          string         `json:"query"`
		FiltersApplied map[string]any `json:"filters_applied"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = SearchResponse{
		Memories:       decodeMemories(w.Memories),
		TotalFound:     w.TotalFound,
		Query:          w.Query,
		FiltersApplied: w.FiltersApplied,
	}
	return nil
}

// UpsertRequest is the body of POST /v1/memories/upsert. Metadata and
// Importance, when set, are parallel to Texts.
type UpsertRequest struct {
	TenantID   string           `json:"tenant_id"`
	UserID     string           `json:"user_id"`
	Texts      []string         `json:"texts"`
	Metadata   []map[string]any `json:"metadata,omitempty"`
	Importance []float64        `json:"importance,omitempty"`
}

// UpsertResult reports the ids of stored memories.
type UpsertResult struct {
	Message   string   `json:"message"`
	MemoryIDs []string `json:"memory_ids"`
	Count     int      `json:"count"`
}
