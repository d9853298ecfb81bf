package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/security"
)

// sessionSummary is a session without its transcript, for listings.
type sessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	Active       bool   `json:"active"`
}

func (g *Gateway) store() *chat.Store { return g.deps.Controller.Store() }

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		current := g.store().CurrentSessionID()
		list := g.store().SessionList()
		out := make([]sessionSummary, len(list))
		for i, s := range list {
			out[i] = sessionSummary{
				ID:           s.ID,
				Title:        s.Title,
				MessageCount: len(s.Messages),
				CreatedAt:    s.CreatedAt.Format(timeLayout),
				UpdatedAt:    s.UpdatedAt.Format(timeLayout),
				Active:       s.ID == current,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

type createSessionRequest struct {
	Title string `json:"title"`
}

func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := g.store().CreateSession(req.Title)
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventSessionCreate, Remote: r.RemoteAddr, SessionID: id})
		sess, _ := g.store().Session(id)
		writeJSON(w, http.StatusCreated, sess)
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := g.store().Session(chi.URLParam(r, "id"))
		if !ok {
			writeErr(w, chat.ErrSessionNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

type renameRequest struct {
	Title string `json:"title"`
}

func (g *Gateway) handleRenameSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renameRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		if err := g.store().UpdateSessionTitle(id, req.Title); err != nil {
			writeErr(w, err)
			return
		}
		sess, _ := g.store().Session(id)
		writeJSON(w, http.StatusOK, sess)
	}
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.store().DeleteSession(id); err != nil {
			writeErr(w, err)
			return
		}
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventSessionDelete, Remote: r.RemoteAddr, SessionID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleActivateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.store().SwitchSession(chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g.store().Projection())
	}
}

func (g *Gateway) handleProjection() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.store().Projection())
	}
}

type sendRequest struct {
	Content string `json:"content"`
	// Wait holds the response until the reply is fully revealed.
	Wait bool `json:"wait"`
}

type sendResponse struct {
	SessionID  string          `json:"sessionId"`
	Status     string          `json:"status"`
	Reply      string          `json:"reply,omitempty"`
	Projection chat.Projection `json:"projection"`
}

// handleSendMessage runs one chat turn. The reveal outlives the request
// unless wait is set; switching, deleting or creating a session cancels it.
func (g *Gateway) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		reveal, err := g.deps.Controller.SendMessage(context.WithoutCancel(r.Context()), req.Content)
		if err != nil {
			writeErr(w, err)
			return
		}
		g.deps.Audit.Log(security.AuditEvent{
			Type:      security.EventMessageSend,
			Remote:    r.RemoteAddr,
			SessionID: g.store().CurrentSessionID(),
		})

		resp := sendResponse{SessionID: g.store().CurrentSessionID(), Status: "filed"}
		if reveal != nil {
			resp.SessionID = reveal.SessionID()
			resp.Status = chat.RevealRunning.String()
			if req.Wait {
				select {
				case <-reveal.Done():
				case <-r.Context().Done():
					return
				}
				resp.Status = reveal.Status().String()
				resp.Reply = reveal.Content()
			}
		}
		resp.Projection = g.store().Projection()
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (g *Gateway) handleCancelReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": g.store().CancelReveal()})
	}
}

func (g *Gateway) handleGetPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.deps.Prefs.Get())
	}
}

func (g *Gateway) handlePutPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch prefs.Patch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.deps.Prefs.Apply(patch); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g.deps.Prefs.Get())
	}
}

func (g *Gateway) handleListNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.deps.Notifier.Notifications())
	}
}

var errNotificationNotFound = errors.New("gateway: notification not found")

func (g *Gateway) handleDismissNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.deps.Notifier.Dismiss(chi.URLParam(r, "id")) {
			writeError(w, http.StatusNotFound, errNotificationNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
