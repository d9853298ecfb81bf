package chat

import "fmt"

// EventKind classifies a store change notification.
type EventKind int

// Store event kinds.
const (
	EventSessionCreated EventKind = iota
	EventSessionSwitched
	EventSessionDeleted
	EventSessionUpdated
	EventProjectionChanged
	EventLoadingChanged
	EventRestored
)

var eventKindNames = [...]string{
	EventSessionCreated:    "session_created",
	EventSessionSwitched:   "session_switched",
	EventSessionDeleted:    "session_deleted",
	EventSessionUpdated:    "session_updated",
	EventProjectionChanged: "projection_changed",
	EventLoadingChanged:    "loading_changed",
	EventRestored:          "restored",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind encoded by MarshalText.
func (k *EventKind) UnmarshalText(text []byte) error {
	for i, name := range eventKindNames {
		if name == string(text) {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("chat: unknown event kind %q", text)
}

// Persisted reports whether an event of this kind may have changed the
// persisted subset of the store. Loading toggles and restores do not.
func (k EventKind) Persisted() bool {
	return k != EventLoadingChanged && k != EventRestored
}

// Event describes a change to the store.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
}
