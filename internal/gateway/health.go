package gateway

import (
	"context"
	"net/http"
	"time"
)

const upstreamHealthTimeout = 2 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"` // "ok" or "degraded"
	Sessions      int    `json:"sessions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Upstream      string `json:"upstream,omitempty"`
	UpstreamError string `json:"upstream_error,omitempty"`
}

// handleHealth reports 200 when the memory service answers (or none is
// configured) and 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			Sessions:      g.store().Len(),
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		}

		if g.deps.Memory != nil {
			ctx, cancel := context.WithTimeout(r.Context(), upstreamHealthTimeout)
			defer cancel()
			h, err := g.deps.Memory.Health(ctx)
			if err != nil {
				resp.Status = "degraded"
				resp.UpstreamError = err.Error()
			} else {
				resp.Upstream = h.Status
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
