package chat

import (
	"context"
	"strings"
	"time"

	"github.com/flemzord/recall/pkg/memory"
)

// DefaultRevealInterval is the delay between simulated tokens.
const DefaultRevealInterval = 50 * time.Millisecond

// RevealStatus is the lifecycle state of a Reveal.
type RevealStatus int

// Reveal states.
const (
	// RevealRunning means chunks are still being written.
	RevealRunning RevealStatus = iota
	// RevealCompleted means the chunk source was drained.
	RevealCompleted
	// RevealFinalized means the reveal was cut short by a session change
	// or a newer reveal and its reply was written in one step.
	RevealFinalized
	// RevealAbandoned means the reveal was cancelled or its session was
	// deleted. Text written so far is kept.
	RevealAbandoned
)

func (s RevealStatus) String() string {
	switch s {
	case RevealRunning:
		return "running"
	case RevealCompleted:
		return "completed"
	case RevealFinalized:
		return "finalized"
	case RevealAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Reveal progressively fills one assistant message from a chunk source.
//
// A reveal is bound to the session that was active when it started. It
// ends when its source is drained, when its context is cancelled, on
// Cancel, or when the store creates a session, switches away from the
// origin, deletes the origin, or starts another reveal. At most one reveal
// runs per store.
type Reveal struct {
	store     *Store
	sessionID string
	index     int
	memories  []memory.Memory
	full      *string
	cancel    context.CancelFunc
	done      chan struct{}

	// guarded by store.mu
	content string
	status  RevealStatus
}

// SessionID returns the origin session id ("" for an ephemeral chat).
func (r *Reveal) SessionID() string { return r.sessionID }

// Done is closed once the reveal has stopped writing.
func (r *Reveal) Done() <-chan struct{} { return r.done }

// Wait blocks until the reveal stops and returns its final status.
func (r *Reveal) Wait() RevealStatus {
	<-r.done
	return r.Status()
}

// Cancel abandons the reveal. It is a no-op once the reveal has ended.
func (r *Reveal) Cancel() {
	r.store.abandonReveal(r)
}

// Status returns the current lifecycle state.
func (r *Reveal) Status() RevealStatus {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.status
}

// Content returns the text written so far.
func (r *Reveal) Content() string {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.content
}

func (r *Reveal) run(ctx context.Context, chunks <-chan string) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.store.abandonReveal(r)
			return
		case chunk, ok := <-chunks:
			if !ok {
				r.store.completeReveal(r, ctx.Err() != nil)
				return
			}
			if !r.store.revealAppend(r, chunk) {
				return
			}
		}
	}
}

// SimulateTokens splits text on whitespace and emits one token per tick,
// prefixing every token but the first with a single space. Concatenating
// the output yields strings.Join(strings.Fields(text), " "). The channel is
// closed when all tokens are sent or ctx is done. A non-positive interval
// uses DefaultRevealInterval.
func SimulateTokens(ctx context.Context, text string, interval time.Duration) <-chan string {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	words := strings.Fields(text)
	out := make(chan string)

	go func() {
		defer close(out)
		if len(words) == 0 {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i, w := range words {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if i > 0 {
				w = " " + w
			}
			select {
			case <-ctx.Done():
				return
			case out <- w:
			}
		}
	}()

	return out
}
