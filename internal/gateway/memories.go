package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/security"
)

// requireMemory answers 503 when no memory service client is configured.
func (g *Gateway) requireMemory(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Memory == nil {
			writeError(w, http.StatusServiceUnavailable, "memory service not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity returns the tenant and user selected in preferences.
func (g *Gateway) identity() (string, string) {
	p := g.deps.Prefs.Get()
	return p.TenantID, p.UserID
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &queryError{name: name, value: raw}
	}
	return n, nil
}

type queryError struct{ name, value string }

func (e *queryError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}

func (g *Gateway) handleListMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tenant, user := g.identity()
		f := engram.MemoryFilter{TenantID: tenant, UserID: user, Limit: limit, Offset: offset}
		if raw := r.URL.Query().Get("active_only"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid active_only")
				return
			}
			f.ActiveOnly = &v
		}

		list, err := g.deps.Memory.ListMemories(r.Context(), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (g *Gateway) handleSearchMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engram.SearchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.TenantID == "" && req.UserID == "" {
			req.TenantID, req.UserID = g.identity()
		}
		resp, err := g.deps.Memory.SearchMemories(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handleDeleteMemory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.deps.Memory.DeleteMemory(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventMemoryDelete, Remote: r.RemoteAddr, Target: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleIngestURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engram.IngestURLRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Type == "" {
			req.Type = "web"
		}
		job, err := g.deps.Memory.IngestURL(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		g.trackJob(r, job, "Ingestion of "+req.URL)
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (g *Gateway) handleIngestChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engram.IngestChatRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		job, err := g.deps.Memory.IngestChat(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		g.trackJob(r, job, "Import of "+req.Platform+" chat")
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (g *Gateway) trackJob(r *http.Request, job engram.Job, label string) {
	g.deps.Audit.Log(security.AuditEvent{Type: security.EventIngest, Remote: r.RemoteAddr, Target: job.JobID, Detail: label})
	if g.deps.Jobs != nil && job.JobID != "" {
		g.deps.Jobs.Track(job.JobID, label)
	}
}

func (g *Gateway) handleJobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.deps.Memory.ProcessingStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (g *Gateway) handleListKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := g.deps.Memory.ListKeys(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		if keys == nil {
			keys = []engram.APIKey{}
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func (g *Gateway) handleCreateKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engram.CreateKeyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.TenantID == "" && req.UserID == "" {
			req.TenantID, req.UserID = g.identity()
		}
		key, err := g.deps.Memory.CreateKey(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventKeyCreate, Remote: r.RemoteAddr, Target: key.KeyID, Detail: req.Name})
		writeJSON(w, http.StatusCreated, key)
	}
}

func (g *Gateway) handleDeleteKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.deps.Memory.DeleteKey(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventKeyDelete, Remote: r.RemoteAddr, Target: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleSyncConnector() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engram.ConnectorSyncRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := g.deps.Memory.SyncConnector(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		g.trackJob(r, engram.Job{JobID: resp.JobID, Status: resp.Status}, "Sync of "+req.Source)
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (g *Gateway) handleAnalytics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := g.deps.Memory.AnalyticsOverview(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func (g *Gateway) handleGraphSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q := r.URL.Query()
		resp, err := g.deps.Memory.GraphSearch(r.Context(), engram.GraphSearchRequest{
			Entity:     q.Get("entity"),
			EntityType: q.Get("entity_type"),
			Limit:      limit,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
