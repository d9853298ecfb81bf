// Package gateway serves the chat sessions, preferences and memory service
// operations over HTTP, with a websocket feed of conversation changes. It
// binds to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/cron"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/security"
)

func init() {
	core.RegisterModule(&Gateway{})
}

var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// MemoryAPI is the part of the memory service client the gateway exposes.
type MemoryAPI interface {
	ListMemories(ctx context.Context, f engram.MemoryFilter) (engram.MemoryList, error)
	SearchMemories(ctx context.Context, req engram.SearchRequest) (engram.SearchResponse, error)
	DeleteMemory(ctx context.Context, id string) error
	IngestURL(ctx context.Context, req engram.IngestURLRequest) (engram.Job, error)
	IngestChat(ctx context.Context, req engram.IngestChatRequest) (engram.Job, error)
	ProcessingStatus(ctx context.Context, jobID string) (engram.JobStatus, error)
	CreateKey(ctx context.Context, req engram.CreateKeyRequest) (engram.CreatedKey, error)
	ListKeys(ctx context.Context) ([]engram.APIKey, error)
	DeleteKey(ctx context.Context, keyID string) error
	SyncConnector(ctx context.Context, req engram.ConnectorSyncRequest) (engram.ConnectorSync, error)
	AnalyticsOverview(ctx context.Context) (engram.AnalyticsOverview, error)
	GraphSearch(ctx context.Context, req engram.GraphSearchRequest) (engram.GraphSearchResponse, error)
	Health(ctx context.Context) (engram.Health, error)
}

// JobTracker follows ingestion jobs started through the gateway.
type JobTracker interface {
	Track(jobID, label string)
}

// Deps are the collaborators the gateway serves. Controller, Prefs and
// Notifier are required; the rest degrade to 503 or no-ops when nil.
type Deps struct {
	Controller *chat.Controller
	Prefs      *prefs.Store
	Notifier   *prefs.Notifier
	Memory     MemoryAPI
	Jobs       JobTracker
	Audit      *security.AuditLogger
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	deps    Deps
	limiter *security.RateLimiter
	live    *liveHub
	server  *http.Server
	addr    net.Addr

	startedAt time.Time
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. Collaborators are resolved from the
// service registry, then the listener is opened.
func (g *Gateway) Start() error {
	deps, err := resolveDeps(g.appCtx)
	if err != nil {
		return err
	}
	return g.serve(deps)
}

func resolveDeps(ctx *core.AppContext) (Deps, error) {
	var d Deps
	var ok bool
	if d.Controller, ok = core.ServiceAs[*chat.Controller](ctx, chat.ControllerService); !ok {
		return d, errors.New("gateway: chat controller not available")
	}
	if d.Prefs, ok = core.ServiceAs[*prefs.Store](ctx, prefs.StoreService); !ok {
		return d, errors.New("gateway: preferences store not available")
	}
	if d.Notifier, ok = core.ServiceAs[*prefs.Notifier](ctx, prefs.NotifierService); !ok {
		return d, errors.New("gateway: notifier not available")
	}
	if api, ok := core.ServiceAs[MemoryAPI](ctx, engram.ClientService); ok {
		d.Memory = api
	}
	if w, ok := core.ServiceAs[*cron.JobWatch](ctx, cron.JobWatchService); ok {
		d.Jobs = w
	}
	d.Audit, _ = core.ServiceAs[*security.AuditLogger](ctx, security.AuditService)
	return d, nil
}

func (g *Gateway) serve(deps Deps) error {
	g.deps = deps
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.limiter = security.NewRateLimiter(g.config.RateLimit.Requests, g.config.RateLimit.Window)
	g.live = newLiveHub(deps.Controller.Store(), g.config.LivePing, g.logger)
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address once started.
func (g *Gateway) Addr() net.Addr { return g.addr }

// Stop implements core.Stopper. Live connections are closed first so
// Shutdown does not wait on them.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.live.close()
	g.deps.Controller.Store().CancelReveal()

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
