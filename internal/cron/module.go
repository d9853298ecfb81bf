package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
)

// JobWatchService is the service name of the module's *JobWatch. Other
// modules hand it ingestion job ids to follow.
const JobWatchService = "cron.jobwatch"

const reloadStopTimeout = 10 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// ConnectorSchedule configures one recurring connector sync.
type ConnectorSchedule struct {
	Source        string         `yaml:"source"`
	Schedule      string         `yaml:"schedule"`
	ForceFullSync bool           `yaml:"force_full_sync"`
	Config        map[string]any `yaml:"config"`
}

// ModuleConfig configures the scheduler module.
type ModuleConfig struct {
	// JobPoll is the schedule for ingestion job polling. Defaults to "@every 10s".
	JobPoll    string              `yaml:"job_poll"`
	Connectors []ConnectorSchedule `yaml:"connectors"`
}

func (c ModuleConfig) validate() error {
	var errs []error
	if c.JobPoll != "" {
		if err := ValidateSchedule(c.JobPoll); err != nil {
			errs = append(errs, fmt.Errorf("job_poll: %w", err))
		}
	}
	seen := make(map[string]bool, len(c.Connectors))
	for i, cs := range c.Connectors {
		if cs.Source == "" {
			errs = append(errs, fmt.Errorf("connectors[%d]: source is required", i))
			continue
		}
		if seen[cs.Source] {
			errs = append(errs, fmt.Errorf("connectors[%d]: duplicate source %q", i, cs.Source))
		}
		seen[cs.Source] = true
		if cs.Schedule != "" {
			if err := ValidateSchedule(cs.Schedule); err != nil {
				errs = append(errs, fmt.Errorf("connectors[%d]: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Client is the part of the memory service the scheduler needs.
type Client interface {
	ConnectorSyncer
	StatusChecker
}

// Module runs scheduled connector syncs and the ingestion job watch.
type Module struct {
	config ModuleConfig
	appCtx *core.AppContext
	logger *slog.Logger
	client Client

	watch     *JobWatch
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The job watch is published
// immediately so other modules can track jobs before Start.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.watch = &JobWatch{Logger: ctx.Logger, ScheduleExpr: m.config.JobPoll}
	ctx.RegisterService(JobWatchService, m.watch)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	client, ok := core.ServiceAs[Client](m.appCtx, engram.ClientService)
	if !ok {
		return errors.New("cron: memory service client not available")
	}
	m.client = client
	m.watch.Client = client
	if n, ok := core.ServiceAs[*prefs.Notifier](m.appCtx, prefs.NotifierService); ok {
		m.watch.Notifier = n
	}

	s, err := m.build(client)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	m.scheduler = s
	return nil
}

func (m *Module) build(client Client) (*Scheduler, error) {
	s := NewScheduler(m.logger)
	if err := s.RegisterJob(m.watch); err != nil {
		return nil, err
	}
	for _, cs := range m.config.Connectors {
		job := &ConnectorSyncJob{
			Client:        client,
			Source:        cs.Source,
			Config:        cs.Config,
			ForceFullSync: cs.ForceFullSync,
			ScheduleExpr:  cs.Schedule,
			Watch:         m.watch,
			Logger:        m.logger,
		}
		if err := s.RegisterJob(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Reload implements core.Reloader. The schedule is rebuilt from the new
// config; tracked jobs survive.
func (m *Module) Reload(ctx *core.AppContext) error {
	var cfg ModuleConfig
	if node, ok := ctx.ModuleConfig("scheduler"); ok {
		if err := node.Decode(&cfg); err != nil {
			return fmt.Errorf("cron: decode config: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	if m.scheduler == nil {
		m.config = cfg
		return nil
	}

	m.config = cfg
	m.watch.ScheduleExpr = cfg.JobPoll
	next, err := m.build(m.client)
	if err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), reloadStopTimeout)
	defer cancel()
	if err := m.scheduler.Stop(stopCtx); err != nil {
		return err
	}
	if err := next.Start(); err != nil {
		return err
	}
	m.scheduler = next
	m.logger.Info("schedule reloaded", "jobs", next.Jobs())
	return nil
}

// Watch returns the job watch.
func (m *Module) Watch() *JobWatch { return m.watch }
