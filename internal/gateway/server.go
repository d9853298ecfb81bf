package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	// Public, no auth.
	r.Get("/health", g.handleHealth())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.deps.Audit))
		}
		r.Use(rateLimitMiddleware(g.limiter, g.deps.Audit))

		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Get("/sessions", g.handleListSessions())
			r.Post("/sessions", g.handleCreateSession())
			r.Get("/sessions/{id}", g.handleGetSession())
			r.Patch("/sessions/{id}", g.handleRenameSession())
			r.Delete("/sessions/{id}", g.handleDeleteSession())
			r.Post("/sessions/{id}/activate", g.handleActivateSession())

			r.Get("/projection", g.handleProjection())
			r.Post("/messages", g.handleSendMessage())
			r.Post("/reveal/cancel", g.handleCancelReveal())
			r.Get("/live", g.live.ServeHTTP)

			r.Get("/preferences", g.handleGetPreferences())
			r.Put("/preferences", g.handlePutPreferences())
			r.Get("/notifications", g.handleListNotifications())
			r.Delete("/notifications/{id}", g.handleDismissNotification())

			r.Group(func(r chi.Router) {
				r.Use(g.requireMemory)
				r.Get("/memories", g.handleListMemories())
				r.Post("/memories/search", g.handleSearchMemories())
				r.Delete("/memories/{id}", g.handleDeleteMemory())
				r.Post("/ingest/url", g.handleIngestURL())
				r.Post("/ingest/chat", g.handleIngestChat())
				r.Get("/jobs/{id}", g.handleJobStatus())
				r.Get("/keys", g.handleListKeys())
				r.Post("/keys", g.handleCreateKey())
				r.Delete("/keys/{id}", g.handleDeleteKey())
				r.Post("/connectors/sync", g.handleSyncConnector())
				r.Get("/analytics", g.handleAnalytics())
				r.Get("/graph/search", g.handleGraphSearch())
			})
		})
	})

	return r
}
