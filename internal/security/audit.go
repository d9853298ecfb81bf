package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// AuditService is the service name of the application's *AuditLogger.
const AuditService = "security.audit"

// EventType categorizes audit events.
type EventType string

// Audit events recorded by the gateway.
const (
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
	EventSessionCreate EventType = "session_create"
	EventSessionDelete EventType = "session_delete"
	EventMessageSend   EventType = "message_send"
	EventMemoryDelete  EventType = "memory_delete"
	EventKeyCreate     EventType = "key_create"
	EventKeyDelete     EventType = "key_delete"
	EventIngest        EventType = "ingest"
	EventConfigReload  EventType = "config_reload"
)

// AuditEvent is one JSONL audit line.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Remote    string            `json:"remote,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Target    string            `json:"target,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives JSONL. Nil disables writing.
	Writer io.Writer
	// Redactor, if set, masks Detail and Metadata values.
	Redactor *Redactor
	// OnEvent observes every event after redaction.
	OnEvent func(AuditEvent)
	// Now overrides time.Now.
	Now func() time.Time
}

// AuditLogger serialises audit events. A nil *AuditLogger discards events.
type AuditLogger struct {
	mu       sync.Mutex
	enc      *json.Encoder
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
}

// NewAuditLogger builds an AuditLogger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      cfg.Now,
	}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Log stamps and writes event. The caller's Metadata map is not mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now().UTC()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.enc != nil {
		_ = l.enc.Encode(event)
	}
}
