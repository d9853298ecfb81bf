package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/recall/internal/chat"
)

const liveWriteTimeout = 5 * time.Second

// liveFrame is one websocket message: the change that triggered it, if
// any, and the projection after it.
type liveFrame struct {
	Event      *chat.Event     `json:"event,omitempty"`
	Projection chat.Projection `json:"projection"`
}

// liveHub pushes projection updates to dashboard websockets. Bursts of
// store events coalesce: a slow client only ever sees the latest state.
type liveHub struct {
	store  *chat.Store
	ping   time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func newLiveHub(store *chat.Store, ping time.Duration, logger *slog.Logger) *liveHub {
	return &liveHub{
		store:  store,
		ping:   ping,
		logger: logger.With("component", "live"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (h *liveHub) add(c *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	liveConnections.Inc()
	return true
}

func (h *liveHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		liveConnections.Dec()
	}
}

// close disconnects every client and refuses new ones.
func (h *liveHub) close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}

func (h *liveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	if !h.add(conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(conn)

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan chat.Event, 1)
	unsubscribe := h.store.Subscribe(func(ev chat.Event) {
		select {
		case updates <- ev:
		default:
		}
	})
	defer unsubscribe()

	if err := h.write(ctx, conn, liveFrame{Projection: h.store.Projection()}); err != nil {
		return
	}

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-updates:
			if err := h.write(ctx, conn, liveFrame{Event: &ev, Projection: h.store.Projection()}); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *liveHub) write(ctx context.Context, conn *websocket.Conn, frame liveFrame) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		h.logger.Debug("live write failed", "error", err)
		return err
	}
	return nil
}
