package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flemzord/recall/internal/chat"
)

// Chat store persistence.
const (
	ChatStoreName = "recall-chat"
	ChatVersion   = 1
)

// ChatMigrations upgrades older chat blobs.
var ChatMigrations = Migrations{
	0: migrateChatV0,
}

// migrateChatV0 accepts the unversioned layout, where sessions may be
// stored as a list instead of a map keyed by id.
func migrateChatV0(state json.RawMessage) (json.RawMessage, error) {
	var legacy struct {
		Sessions         json.RawMessage `json:"sessions"`
		CurrentSessionID string          `json:"currentSessionId"`
	}
	if err := json.Unmarshal(state, &legacy); err != nil {
		return nil, err
	}

	out := chat.State{
		Sessions:         make(map[string]chat.Session),
		CurrentSessionID: legacy.CurrentSessionID,
	}
	if len(legacy.Sessions) > 0 && legacy.Sessions[0] == '[' {
		var list []chat.Session
		if err := json.Unmarshal(legacy.Sessions, &list); err != nil {
			return nil, fmt.Errorf("sessions list: %w", err)
		}
		for _, s := range list {
			if s.ID == "" {
				continue
			}
			out.Sessions[s.ID] = s
		}
	} else if len(legacy.Sessions) > 0 && string(legacy.Sessions) != "null" {
		if err := json.Unmarshal(legacy.Sessions, &out.Sessions); err != nil {
			return nil, fmt.Errorf("sessions map: %w", err)
		}
	}
	return json.Marshal(out)
}

// NewChatBridge returns the bridge for the chat session store.
func NewChatBridge(storage Storage, logger *slog.Logger) *Bridge[chat.State] {
	return NewBridge[chat.State](ChatStoreName, storage, ChatVersion, ChatMigrations, logger)
}

// AttachChat hydrates store from storage and then mirrors every persisted
// change back. The returned func stops mirroring.
func AttachChat(ctx context.Context, store *chat.Store, storage Storage, logger *slog.Logger) (stop func()) {
	b := NewChatBridge(storage, logger)
	b.Hydrate(ctx, store.Restore)
	return b.Mirror(ctx, store.SubscribePersisted, store.Snapshot)
}
