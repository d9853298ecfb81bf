package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/recall/pkg/memory"
)

// ControllerService is the service name of the application's *Controller.
const ControllerService = "chat.controller"

// ChatRequest is one retrieval-augmented completion request.
type ChatRequest struct {
	Messages    []Message
	Modalities  []memory.Modality
	K           int
	Temperature float64
}

// ChatReply is the assistant answer and the memories used to ground it.
type ChatReply struct {
	Content  string
	Memories []memory.Memory
}

// Responder produces assistant replies. The memory service client adapter
// implements it.
type Responder interface {
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
}

// Notifier posts transient user-visible notices.
type Notifier interface {
	Error(text string) string
}

// ControllerConfig tunes chat turns.
type ControllerConfig struct {
	RevealInterval time.Duration
	Temperature    float64
	K              int
	Modalities     []memory.Modality
	Logger         *slog.Logger
}

// Controller runs chat turns against the store: append the user message,
// ask the responder, and reveal the reply.
type Controller struct {
	store     *Store
	responder Responder
	notifier  Notifier
	logger    *slog.Logger

	mu  sync.RWMutex
	cfg ControllerConfig
}

// NewController wires a controller. notifier may be nil.
func NewController(store *Store, responder Responder, notifier Notifier, cfg ControllerConfig) *Controller {
	if cfg.RevealInterval <= 0 {
		cfg.RevealInterval = DefaultRevealInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		responder: responder,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "chat-controller"),
	}
}

// Config returns the current turn settings.
func (c *Controller) Config() ControllerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Reconfigure replaces the turn settings for subsequent messages. A reveal
// already running keeps its interval. The logger is not changed.
func (c *Controller) Reconfigure(cfg ControllerConfig) {
	if cfg.RevealInterval <= 0 {
		cfg.RevealInterval = DefaultRevealInterval
	}
	c.mu.Lock()
	cfg.Logger = c.cfg.Logger
	c.cfg = cfg
	c.mu.Unlock()
	c.logger.Info("chat settings updated",
		"reveal_interval", cfg.RevealInterval, "temperature", cfg.Temperature, "k", cfg.K)
}

// Store returns the underlying session store.
func (c *Controller) Store() *Store { return c.store }

// SendMessage runs one chat turn. Blank input is rejected. When no session
// is active one is created so the turn is persisted. On responder failure
// the loading flag is cleared, a notification is posted and the error is
// returned; the user message stays in the conversation. On success the
// reply is revealed at the configured interval under ctx.
func (c *Controller) SendMessage(ctx context.Context, text string) (*Reveal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	origin, created, history := c.store.BeginTurn(Message{Role: RoleUser, Content: text})
	if created {
		c.logger.Info("session auto-created", "session_id", origin)
	}

	cfg := c.Config()
	req := ChatRequest{
		Messages:    history,
		Modalities:  cfg.Modalities,
		K:           cfg.K,
		Temperature: cfg.Temperature,
	}
	reply, err := c.responder.Chat(ctx, req)
	if err != nil {
		c.store.SetLoading(false)
		sendFailures.Inc()
		c.logger.Warn("chat request failed", "error", err)
		if c.notifier != nil {
			c.notifier.Error("Failed to send message: " + err.Error())
		}
		return nil, fmt.Errorf("chat: send: %w", err)
	}

	// The user moved on while the request was in flight: file the reply
	// under the session that asked for it without revealing it.
	if c.store.CurrentSessionID() != origin {
		c.store.SetLoading(false)
		msg := Message{Role: RoleAssistant, Content: strings.Join(strings.Fields(reply.Content), " ")}
		if err := c.store.AppendToSession(origin, msg, reply.Memories); err != nil {
			c.logger.Info("reply dropped", "session_id", origin, "error", err)
		}
		return nil, nil
	}

	return c.store.RevealText(ctx, reply.Content, cfg.RevealInterval, reply.Memories), nil
}
