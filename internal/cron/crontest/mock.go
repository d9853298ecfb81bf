// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/recall/internal/cron"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Engram fakes the connector and job-status endpoints.
type Engram struct {
	mu       sync.Mutex
	Syncs    []engram.ConnectorSyncRequest
	SyncErr  error
	NextJob  string
	Statuses map[string]engram.JobStatus
	Errs     map[string]error
}

var (
	_ cron.ConnectorSyncer = (*Engram)(nil)
	_ cron.StatusChecker   = (*Engram)(nil)
)

// SyncConnector records req and returns NextJob as the job id.
func (e *Engram) SyncConnector(_ context.Context, req engram.ConnectorSyncRequest) (engram.ConnectorSync, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SyncErr != nil {
		return engram.ConnectorSync{}, e.SyncErr
	}
	e.Syncs = append(e.Syncs, req)
	return engram.ConnectorSync{JobID: e.NextJob, Source: req.Source, Status: engram.JobPending}, nil
}

// ProcessingStatus returns the configured status or error for jobID.
func (e *Engram) ProcessingStatus(_ context.Context, jobID string) (engram.JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.Errs[jobID]; ok {
		return engram.JobStatus{}, err
	}
	if st, ok := e.Statuses[jobID]; ok {
		return st, nil
	}
	return engram.JobStatus{JobID: jobID, Status: engram.JobProcessing}, nil
}

// SetStatus replaces the status reported for jobID.
func (e *Engram) SetStatus(jobID string, st engram.JobStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Statuses == nil {
		e.Statuses = make(map[string]engram.JobStatus)
	}
	e.Statuses[jobID] = st
}

// Notice is one recorded notification.
type Notice struct {
	Level prefs.Level
	Text  string
}

// Notifier records notifications.
type Notifier struct {
	mu      sync.Mutex
	notices []Notice
}

var _ cron.Notifier = (*Notifier)(nil)

// Notify implements cron.Notifier.
func (n *Notifier) Notify(level prefs.Level, text string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Level: level, Text: text})
	return text
}

// Notices returns a copy of the recorded notifications.
func (n *Notifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}
