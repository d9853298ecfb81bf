// Package reload re-reads the configuration file on SIGHUP or when its
// content changes, and pushes the result into running modules.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	ConfigPath string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

func (c WatcherConfig) interval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Event reports that the watched file's content changed.
type Event struct {
	ConfigPath string
	Digest     [sha256.Size]byte
}

// Watcher polls a file and emits an Event whenever its content digest
// changes. Touching the file without changing it emits nothing; editors
// that replace the file through a rename are handled the same way.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher. Call Start to begin polling.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of change events. It holds at most one
// pending event; further changes coalesce until it is drained.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for the poll goroutine to exit.
// Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.interval())
	defer ticker.Stop()

	last, _ := w.digest()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			sum, ok := w.digest()
			if !ok || sum == last {
				continue
			}
			last = sum
			select {
			case w.events <- Event{ConfigPath: w.cfg.ConfigPath, Digest: sum}:
			default:
			}
		}
	}
}

// digest hashes the file. A missing or unreadable file reports false so a
// transient rename never counts as a change.
func (w *Watcher) digest() ([sha256.Size]byte, bool) {
	data, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}
