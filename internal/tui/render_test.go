package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/pkg/memory"
)

func newTestRenderer() *Renderer {
	return New(&bytes.Buffer{}, prefs.ThemeDark, 60)
}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	out := r.Transcript(chat.Projection{
		SessionID: "s1",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "where is paris"},
			{Role: chat.RoleAssistant, Content: "in france"},
		},
		Loading: true,
	})
	assertContains(t, out, "you", "where is paris", "assistant", "in france", "thinking")
	if strings.Contains(out, "unsaved") {
		t.Error("saved session rendered as unsaved")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output should carry no escape codes")
	}
}

func TestTranscript_EmptyEphemeral(t *testing.T) {
	t.Parallel()

	out := newTestRenderer().Transcript(chat.Projection{})
	assertContains(t, out, "unsaved conversation", "No messages yet.")
}

func TestSessions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	list := []chat.Session{
		{ID: "a1", Title: "Trip planning", Messages: make([]chat.Message, 3), UpdatedAt: now},
		{ID: "b2", Title: "Recipes", UpdatedAt: now.Add(-time.Hour)},
	}
	out := newTestRenderer().Sessions(list, "b2")
	assertContains(t, out, "Trip planning", "Recipes", "a1", "b2", "Title", "*")

	if got := newTestRenderer().Sessions(nil, ""); got != "No sessions." {
		t.Errorf("empty = %q", got)
	}
}

func TestMemories(t *testing.T) {
	t.Parallel()

	score := 0.875
	out := newTestRenderer().Memories([]memory.Memory{
		{ID: "m1", Text: "Paris\nis in France", Modality: memory.ModalityWeb, Importance: 0.5, Score: &score},
		{ID: "m2", Text: "unscored", Modality: memory.ModalityText},
	})
	assertContains(t, out, "m1", "web", "0.88", "0.50", "Paris is in France", "m2")
}

func TestContext(t *testing.T) {
	t.Parallel()

	src := "https://example.com"
	out := newTestRenderer().Context([]memory.Memory{{ID: "c1", Text: "fact", SourceURI: &src}})
	assertContains(t, out, "Context (1)", "fact", "(https://example.com)")
}

func TestNotificationsAndJob(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	out := r.Notifications([]prefs.Notification{
		{Level: prefs.LevelError, Text: "Failed to send message"},
		{Level: prefs.LevelSuccess, Text: "Saved"},
	})
	assertContains(t, out, "[error] Failed to send message", "[success] Saved")

	job := r.Job(engram.JobStatus{JobID: "j1", Status: engram.JobFailed, Progress: 0.5, Error: "fetch failed"})
	assertContains(t, job, "[error]", "j1", "failed", "50%", "fetch failed")

	job = r.Job(engram.JobStatus{JobID: "j2", Status: engram.JobProcessing})
	assertContains(t, job, "[info]", "processing")
}

func TestKeysSourcesAnalytics(t *testing.T) {
	t.Parallel()

	r := newTestRenderer()
	assertContains(t, r.Keys([]engram.APIKey{{ID: "k1", Name: "ci", Scopes: []string{"read", "write"}}}),
		"k1", "ci", "read,write", "revoked")
	assertContains(t, r.Sources([]engram.ConnectorSource{{ID: "notion", Name: "Notion", RequiredConfig: []string{"token"}}}),
		"notion", "Notion", "token")
	assertContains(t, r.Analytics(engram.AnalyticsOverview{
		TotalMemories: 12,
		MemoryTypes:   map[string]int{"web": 4, "text": 8},
		TopSources:    []engram.SourceCount{{Source: "https://a.example", Count: 3}},
	}), "memories        12", "web", "text", "https://a.example")
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"  spaced\n\tout  ", 20, "spaced out"},
		{"abcdefgh", 5, "abcd…"},
		{"héllo wörld", 6, "héllo…"},
		{"abc", 1, "…"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Snippet(tt.in, tt.n); got != tt.want {
			t.Errorf("Snippet(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := Since(now, now.Add(-tt.d)); got != tt.want {
			t.Errorf("Since(-%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
