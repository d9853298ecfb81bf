package chat

import (
	"time"

	"github.com/flemzord/recall/pkg/memory"
)

// Role identifies the author of a message. It is fixed at creation.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a persisted conversation record.
type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []Message       `json:"messages"`
	Context   []memory.Memory `json:"context"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// clone returns a deep copy so callers never alias store-owned slices.
func (s *Session) clone() Session {
	cp := *s
	cp.Messages = cloneMessages(s.Messages)
	cp.Context = memory.CloneAll(s.Context)
	return cp
}

// Projection is the working view of the active conversation. When no
// session is active it holds ephemeral messages that are never persisted.
type Projection struct {
	SessionID string          `json:"sessionId,omitempty"`
	Messages  []Message       `json:"messages"`
	Context   []memory.Memory `json:"context"`
	Loading   bool            `json:"loading"`
}

// State is the persisted subset of the store.
type State struct {
	Sessions         map[string]Session `json:"sessions"`
	CurrentSessionID string             `json:"currentSessionId"`
}

// DefaultTitle returns the title given to sessions created without one.
func DefaultTitle(createdAt time.Time) string {
	return "Chat " + createdAt.Format("Jan 2, 2006 15:04")
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
