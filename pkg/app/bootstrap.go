// Package app assembles recall's runtime: configuration, logging, the
// memory service client, the chat and preference stores with their
// persistence, and the configured modules.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/localstore"
	"github.com/flemzord/recall/internal/persist"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/security"
	"github.com/flemzord/recall/internal/telemetry"

	// Registered modules.
	_ "github.com/flemzord/recall/internal/cron"
	_ "github.com/flemzord/recall/internal/gateway"
	_ "github.com/flemzord/recall/modules/store/sqlite"
)

// Options configures Bootstrap.
type Options struct {
	// ConfigPath is an explicit YAML config path. When empty the standard
	// locations are searched, and if none exists the config is built from
	// defaults and RECALL_* environment variables alone.
	ConfigPath string

	// DataDir overrides the configured data directory.
	DataDir string

	// LogLevel overrides log.level when non-empty.
	LogLevel string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Version is reported to the telemetry resource and the MCP handshake.
	Version string

	// Offline skips building the memory service client, for commands that
	// only touch local state.
	Offline bool
}

// Runtime is a bootstrapped, not yet started, application.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Audit      *security.AuditLogger
	Client     *engram.Client
	Notifier   *prefs.Notifier
	Prefs      *prefs.Store
	Chat       *chat.Store
	Controller *chat.Controller
	Storage    persist.Storage
	App        *core.App
	AppContext *core.AppContext

	logLevel *slog.LevelVar
	cleanup  []func(context.Context) error
}

// Bootstrap loads and validates configuration, then builds every shared
// service and loads (but does not start) the configured modules. On error
// everything built so far is released.
func Bootstrap(ctx context.Context, opts Options) (rt *Runtime, err error) {
	cfg, cfgPath, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	rt = &Runtime{Config: cfg, ConfigPath: cfgPath}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	rt.Redactor = security.NewRedactor()
	rt.Redactor.AddLiteral(cfg.API.APIKey)
	rt.logLevel = new(slog.LevelVar)
	rt.logLevel.Set(cfg.Log.SlogLevel())
	rt.Logger = slog.New(security.NewRedactingHandler(newLogHandler(out, cfg.Log.Format, rt.logLevel), rt.Redactor))
	rt.Audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Redactor: rt.Redactor,
		OnEvent: func(e security.AuditEvent) {
			rt.Logger.Debug("audit", "type", string(e.Type), "target", e.Target, "detail", e.Detail)
		},
	})

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, opts.Version, rt.Logger)
	if err != nil {
		return rt, fmt.Errorf("telemetry: %w", err)
	}
	rt.cleanup = append(rt.cleanup, shutdown)

	rt.Notifier = prefs.NewNotifier(prefs.DefaultNotificationTTL, rt.Logger)
	initialPrefs := prefs.Defaults()
	initialPrefs.TenantID = cfg.API.TenantID
	initialPrefs.UserID = cfg.API.UserID
	rt.Prefs = prefs.NewStore(initialPrefs)
	rt.Chat = chat.NewStore(chat.WithLogger(rt.Logger))

	var responder chat.Responder = offlineResponder{}
	if !opts.Offline {
		rt.Client, err = engram.New(engram.Config{
			BaseURL:  cfg.API.BaseURL,
			APIKey:   cfg.API.APIKey,
			TenantID: cfg.API.TenantID,
			UserID:   cfg.API.UserID,
			Timeout:  cfg.API.Timeout,
		}, engram.WithLogger(rt.Logger), engram.WithTracer(telemetry.Tracer("recall/engram")))
		if err != nil {
			return rt, err
		}
		responder = engram.NewResponder(rt.Client)
	}
	rt.Controller = chat.NewController(rt.Chat, responder, rt.Notifier, controllerConfig(cfg, rt.Logger))

	rt.AppContext = core.NewAppContext(rt.Logger, cfg.DataDir).WithModuleConfigs(cfg.Modules)
	rt.registerServices()

	rt.App = core.NewApp(rt.AppContext)
	if err := rt.App.LoadModules(config.Resolve(cfg)); err != nil {
		return rt, err
	}
	rt.cleanup = append(rt.cleanup, func(context.Context) error {
		rt.App.Stop()
		return nil
	})

	storage, ok := core.ServiceAs[persist.Storage](rt.AppContext, localstore.StorageService)
	if !ok {
		return rt, errors.New("app: no storage module registered a store")
	}
	rt.Storage = storage
	stopChat := persist.AttachChat(ctx, rt.Chat, storage, rt.Logger)
	stopPrefs := persist.AttachPrefs(ctx, rt.Prefs, storage, rt.Logger)
	rt.cleanup = append(rt.cleanup, func(context.Context) error {
		stopChat()
		stopPrefs()
		return nil
	})

	rt.Logger.Debug("runtime bootstrapped",
		"config", cfgPath, "data_dir", cfg.DataDir, "modules", rt.App.ModuleIDs())
	return rt, nil
}

func (rt *Runtime) registerServices() {
	if rt.Client != nil {
		rt.AppContext.RegisterService(engram.ClientService, rt.Client)
	}
	rt.AppContext.RegisterService(prefs.NotifierService, rt.Notifier)
	rt.AppContext.RegisterService(prefs.StoreService, rt.Prefs)
	rt.AppContext.RegisterService(chat.ControllerService, rt.Controller)
	rt.AppContext.RegisterService(security.AuditService, rt.Audit)
}

// Start starts every loaded module.
func (rt *Runtime) Start() error {
	return rt.App.Start()
}

// SetLogLevel changes the minimum level of the runtime logger.
func (rt *Runtime) SetLogLevel(l slog.Level) { rt.logLevel.Set(l) }

// ApplyConfig pushes the settings that can change without a restart into
// the running process: chat tuning, log level and the redacted API key.
func (rt *Runtime) ApplyConfig(cfg *config.Config) error {
	rt.Controller.Reconfigure(controllerConfig(cfg, rt.Logger))
	rt.logLevel.Set(cfg.Log.SlogLevel())
	rt.Redactor.AddLiteral(cfg.API.APIKey)
	if cfg.API.APIKey != rt.Config.API.APIKey || cfg.API.BaseURL != rt.Config.API.BaseURL {
		rt.Logger.Warn("api settings changed; restart to apply them")
	}
	rt.Config.Chat = cfg.Chat
	rt.Config.Log = cfg.Log
	return nil
}

// Close stops modules, flushes persistence and telemetry, in reverse
// order of construction. It is safe to call more than once.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		if err := rt.cleanup[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.cleanup = nil
	return errors.Join(errs...)
}

func controllerConfig(cfg *config.Config, logger *slog.Logger) chat.ControllerConfig {
	return chat.ControllerConfig{
		RevealInterval: cfg.Chat.RevealInterval,
		Temperature:    cfg.Chat.Temperature,
		K:              cfg.Chat.RetrievalK,
		Modalities:     cfg.Chat.Modalities,
		Logger:         logger,
	}
}

func newLogHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			cfg, envErr := config.FromEnv()
			return cfg, "", envErr
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// offlineResponder backs the controller when no client was built.
type offlineResponder struct{}

var errOffline = errors.New("app: memory service client not configured")

func (offlineResponder) Chat(context.Context, chat.ChatRequest) (chat.ChatReply, error) {
	return chat.ChatReply{}, errOffline
}
