package gateway

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/security"
)

func TestAPI_SessionLifecycle(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	resp, body := env.do(t, http.MethodPost, "/api/sessions", `{"title":"Research"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	created := decode[chat.Session](t, body)
	if created.Title != "Research" || env.store.CurrentSessionID() != created.ID {
		t.Fatalf("created = %+v, current = %q", created, env.store.CurrentSessionID())
	}

	resp, body = env.do(t, http.MethodPatch, "/api/sessions/"+created.ID, `{"title":"Renamed"}`)
	if resp.StatusCode != http.StatusOK || decode[chat.Session](t, body).Title != "Renamed" {
		t.Fatalf("rename = %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPatch, "/api/sessions/"+created.ID, `{"title":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank rename status = %d: %s", resp.StatusCode, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/sessions", "")
	list := decode[[]sessionSummary](t, body)
	if len(list) != 1 || !list[0].Active || list[0].Title != "Renamed" {
		t.Errorf("list = %+v", list)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/sessions/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if env.store.CurrentSessionID() != "" {
		t.Error("active id should be cleared after deleting the active session")
	}
}

func TestAPI_UnknownSessionIs404(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodDelete, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/activate", ""},
		{http.MethodPatch, "/api/sessions/nope", `{"title":"x"}`},
	} {
		resp, body := env.do(t, tc.method, tc.path, tc.body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, resp.StatusCode)
		}
		if !strings.Contains(string(body), chat.ErrSessionNotFound.Error()) {
			t.Errorf("%s %s body = %s", tc.method, tc.path, body)
		}
	}
}

func TestAPI_SendMessageWaitsForReveal(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	resp, body := env.do(t, http.MethodPost, "/api/messages", `{"content":"what do I know?","wait":true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	got := decode[sendResponse](t, body)
	if got.Reply != "hello from memory" || got.Status != chat.RevealCompleted.String() {
		t.Errorf("reply = %q status = %q", got.Reply, got.Status)
	}
	msgs := got.Projection.Messages
	if len(msgs) != 2 || msgs[0].Role != chat.RoleUser || msgs[1].Content != "hello from memory" {
		t.Errorf("projection = %+v", msgs)
	}
	if got.SessionID == "" || got.SessionID != env.store.CurrentSessionID() {
		t.Errorf("session id = %q", got.SessionID)
	}
}

func TestAPI_SendMessageErrors(t *testing.T) {
	t.Parallel()

	store := chat.NewStore(chat.WithLogger(testLogger()))
	notifier := prefs.NewNotifier(time.Minute, testLogger())
	failing := chat.NewController(store, &echoResponder{err: &engram.APIError{StatusCode: 503, Message: "down"}},
		notifier, chat.ControllerConfig{Logger: testLogger()})
	env := startGateway(t, Config{}, Deps{Controller: failing, Notifier: notifier})

	resp, _ := env.do(t, http.MethodPost, "/api/messages", `{"content":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/messages", `{"content":"hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d, want 502", resp.StatusCode)
	}
	if store.Loading() {
		t.Error("loading must be cleared after a failure")
	}

	_, body := env.do(t, http.MethodGet, "/api/notifications", "")
	notes := decode[[]prefs.Notification](t, body)
	if len(notes) != 1 || notes[0].Level != prefs.LevelError {
		t.Fatalf("notifications = %+v", notes)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/notifications/"+notes[0].ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("dismiss status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/notifications/"+notes[0].ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second dismiss status = %d", resp.StatusCode)
	}
}

func TestAPI_Preferences(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	resp, body := env.do(t, http.MethodPut, "/api/preferences", `{"theme":"dark","tenantId":"acme"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	p := decode[prefs.Preferences](t, body)
	if p.Theme != prefs.ThemeDark || p.TenantID != "acme" || p.UserID != "default" {
		t.Errorf("prefs = %+v", p)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/preferences", `{"theme":"sepia"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid theme status = %d", resp.StatusCode)
	}
	if env.prefs.Get().Theme != prefs.ThemeDark {
		t.Error("invalid patch must not change preferences")
	}
}

func TestAPI_MemoryRoutes(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{}
	jobs := &recordingTracker{}
	env := startGateway(t, Config{}, Deps{Memory: mem, Jobs: jobs})
	_ = env.prefs.SetIdentity("acme", "ada")

	resp, body := env.do(t, http.MethodPost, "/api/memories/search", `{"query":"rust"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d: %s", resp.StatusCode, body)
	}
	if got := mem.recordedSearches(); len(got) != 1 || got[0].TenantID != "acme" || got[0].UserID != "ada" {
		t.Errorf("searches = %+v", got)
	}

	resp, body = env.do(t, http.MethodPost, "/api/ingest/url", `{"url":"https://example.com/post"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d: %s", resp.StatusCode, body)
	}
	if got := jobs.tracked(); len(got) != 1 || got[0] != "job-7" {
		t.Errorf("tracked = %v", got)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/memories/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing = %d, want 404", resp.StatusCode)
	}

	mem.setErr(&engram.APIError{StatusCode: 500, Message: "boom"})
	resp, body = env.do(t, http.MethodPost, "/api/memories/search", `{"query":"rust"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream 500 = %d, want 502", resp.StatusCode)
	}
	if !strings.Contains(string(body), "boom") {
		t.Errorf("body = %s", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/memories/search", `{"query":"x","bogus":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_MemoryRoutesWithoutClient(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	resp, _ := env.do(t, http.MethodGet, "/api/memories", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{}
	env := startGateway(t, Config{}, Deps{Memory: mem})

	resp, body := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || decode[HealthResponse](t, body).Upstream != "healthy" {
		t.Errorf("health = %d %s", resp.StatusCode, body)
	}

	mem.setErr(errors.Join(engram.ErrServiceUnavailable, errors.New("dial tcp: refused")))
	resp, body = env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable || decode[HealthResponse](t, body).Status != "degraded" {
		t.Errorf("degraded health = %d %s", resp.StatusCode, body)
	}
}

func TestAPI_Auth(t *testing.T) {
	t.Parallel()

	var audit syncBuffer
	env := startGateway(t,
		Config{Auth: AuthConfig{BearerToken: "s3cret-token", BasicUser: "admin", BasicPass: "pw"}},
		Deps{Audit: security.NewAuditLogger(security.AuditLoggerConfig{Writer: &audit})})

	resp, _ := env.do(t, http.MethodGet, "/api/projection", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no auth = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/projection", "", "Authorization", "Bearer wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/projection", "", "Authorization", "Bearer s3cret-token")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bearer = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/projection", "", "Authorization", "Basic YWRtaW46cHc=")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("basic = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay public, got %d", resp.StatusCode)
	}

	if got := strings.Count(audit.String(), string(security.EventAuthFailure)); got != 2 {
		t.Errorf("auth failures audited = %d, want 2", got)
	}
}

func TestAPI_RateLimit(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{RateLimit: RateLimitConfig{Requests: 2, Window: time.Hour}}, Deps{})

	for i := range 2 {
		if resp, _ := env.do(t, http.MethodGet, "/api/projection", ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d = %d", i, resp.StatusCode)
		}
	}
	if resp, _ := env.do(t, http.MethodGet, "/api/projection", ""); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", resp.StatusCode)
	}
}

func TestAPI_Metrics(t *testing.T) {
	t.Parallel()
	env := startGateway(t, Config{}, Deps{})

	env.do(t, http.MethodGet, "/api/projection", "")
	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "recall_gateway_requests_total") {
		t.Error("gateway request counter missing from /metrics")
	}
}
