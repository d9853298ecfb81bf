package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
)

// ConnectorSyncer starts a connector sync on the memory service.
type ConnectorSyncer interface {
	SyncConnector(ctx context.Context, req engram.ConnectorSyncRequest) (engram.ConnectorSync, error)
}

// StatusChecker reads the state of an ingestion job.
type StatusChecker interface {
	ProcessingStatus(ctx context.Context, jobID string) (engram.JobStatus, error)
}

// Notifier posts user-visible transient notifications.
type Notifier interface {
	Notify(level prefs.Level, text string) string
}

// ConnectorSyncJob starts a sync of one connector source on a schedule and
// hands the resulting job to Watch, when set.
type ConnectorSyncJob struct {
	Client        ConnectorSyncer
	Source        string
	Config        map[string]any
	ForceFullSync bool
	ScheduleExpr  string // empty = "@daily"
	Watch         *JobWatch
	Logger        *slog.Logger
}

var _ Job = (*ConnectorSyncJob)(nil)

// Name implements Job.
func (j *ConnectorSyncJob) Name() string { return "connector_sync:" + j.Source }

// Schedule implements Job.
func (j *ConnectorSyncJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@daily"
}

// Run implements Job.
func (j *ConnectorSyncJob) Run(ctx context.Context) error {
	resp, err := j.Client.SyncConnector(ctx, engram.ConnectorSyncRequest{
		Source:        j.Source,
		Config:        j.Config,
		ForceFullSync: j.ForceFullSync,
	})
	if err != nil {
		return fmt.Errorf("cron: sync %s: %w", j.Source, err)
	}
	if j.Logger != nil {
		j.Logger.Info("connector sync started", "source", j.Source, "job_id", resp.JobID)
	}
	if j.Watch != nil && resp.JobID != "" {
		j.Watch.Track(resp.JobID, "Sync of "+j.Source)
	}
	return nil
}

// JobWatch polls tracked ingestion jobs and posts a notification when each
// one completes or fails, then stops tracking it.
type JobWatch struct {
	Client       StatusChecker
	Notifier     Notifier
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@every 10s"

	mu      sync.Mutex
	tracked map[string]string
}

var _ Job = (*JobWatch)(nil)

// Track starts watching jobID. label names the job in notifications.
func (w *JobWatch) Track(jobID, label string) {
	if label == "" {
		label = "Job " + jobID
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked == nil {
		w.tracked = make(map[string]string)
	}
	w.tracked[jobID] = label
}

// Tracked returns the watched job ids, sorted.
func (w *JobWatch) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.tracked))
}

func (w *JobWatch) untrack(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, jobID)
}

func (w *JobWatch) label(jobID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracked[jobID]
}

// Name implements Job.
func (w *JobWatch) Name() string { return "job_watch" }

// Schedule implements Job.
func (w *JobWatch) Schedule() string {
	if w.ScheduleExpr != "" {
		return w.ScheduleExpr
	}
	return "@every 10s"
}

// Run checks every tracked job once. Jobs that fail to report stay
// tracked; jobs the service no longer knows are dropped.
func (w *JobWatch) Run(ctx context.Context) error {
	if w.Client == nil {
		return nil
	}

	var errs []error
	for _, id := range w.Tracked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := w.label(id)

		st, err := w.Client.ProcessingStatus(ctx, id)
		switch {
		case errors.Is(err, engram.ErrNotFound):
			w.untrack(id)
			w.notify(prefs.LevelWarning, label+" is no longer known to the server")
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("cron: job %s: %w", id, err))
			continue
		case !st.Terminal():
			continue
		}

		w.untrack(id)
		if st.Status == engram.JobCompleted {
			w.notify(prefs.LevelSuccess, label+" completed")
			continue
		}
		reason := st.Error
		if reason == "" {
			reason = st.Message
		}
		w.notify(prefs.LevelError, fmt.Sprintf("%s failed: %s", label, reason))
	}
	return errors.Join(errs...)
}

func (w *JobWatch) notify(level prefs.Level, text string) {
	if w.Logger != nil {
		w.Logger.Info("ingestion job finished", "level", level, "text", text)
	}
	if w.Notifier != nil {
		w.Notifier.Notify(level, text)
	}
}
