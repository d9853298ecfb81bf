package prefs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NotifierService is the service name of the shared *Notifier.
const NotifierService = "prefs.notifier"

// DefaultNotificationTTL is how long a notification stays visible.
const DefaultNotificationTTL = 5 * time.Second

// Level is a notification severity.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a transient user-visible notice. It is never persisted.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifier keeps recent notifications until they expire or are dismissed.
type Notifier struct {
	mu     sync.Mutex
	items  []Notification
	seq    int
	ttl    time.Duration
	logger *slog.Logger

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewNotifier creates a notifier. A non-positive ttl uses
// DefaultNotificationTTL.
func NewNotifier(ttl time.Duration, logger *slog.Logger) *Notifier {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "notifier"),
	}
}

// Notify posts a notification and returns its id.
func (n *Notifier) Notify(level Level, text string) string {
	n.mu.Lock()
	n.seq++
	now := n.now()
	item := Notification{
		ID:        fmt.Sprintf("n%d", n.seq),
		Level:     level,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
	}
	n.items = append(n.pruneLocked(now), item)
	n.mu.Unlock()

	n.logger.Debug("notification posted", "id", item.ID, "level", level)
	return item.ID
}

// Info posts an informational notification.
func (n *Notifier) Info(text string) string { return n.Notify(LevelInfo, text) }

// Success posts a success notification.
func (n *Notifier) Success(text string) string { return n.Notify(LevelSuccess, text) }

// Error posts an error notification.
func (n *Notifier) Error(text string) string { return n.Notify(LevelError, text) }

// Notifications returns the live notifications, oldest first.
func (n *Notifier) Notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = n.pruneLocked(n.now())
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Dismiss removes a notification before it expires.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Notifier) pruneLocked(now time.Time) []Notification {
	kept := n.items[:0]
	for _, item := range n.items {
		if now.Before(item.ExpiresAt) {
			kept = append(kept, item)
		}
	}
	return kept
}
