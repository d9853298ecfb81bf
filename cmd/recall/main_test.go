package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/tui"
	"github.com/flemzord/recall/pkg/memory"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func localConfig(dataDir string) string {
	return `version: "1"
data_dir: ` + dataDir + `
api:
  base_url: http://127.0.0.1:1
chat:
  reveal_interval: 1ms
`
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "recall dev") {
		t.Errorf("output = %q", out)
	}
	for _, id := range []string{"store.file", "store.sqlite", "gateway", "scheduler"} {
		if !strings.Contains(out, id) {
			t.Errorf("module %s not listed in %q", id, out)
		}
	}
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, localConfig(t.TempDir()))
	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "OK") || !strings.Contains(out, "store.file") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "no API key") {
		t.Errorf("expected key warning in %q", out)
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := writeConfig(t, `version: "1"
api:
  base_url: ftp://example.com
modules:
  nope: {}
`)
	_, err := execute(t, "config", "check", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"http or https", `unknown module "nope"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edit    func(*initAnswers)
		modules []string
		key     string
		wantErr bool
	}{
		{name: "defaults", edit: func(*initAnswers) {}, key: apiKeyRef},
		{
			name:    "sqlite",
			edit:    func(a *initAnswers) { a.Store = "sqlite" },
			modules: []string{"store.sqlite"},
			key:     apiKeyRef,
		},
		{
			name:    "gateway",
			edit:    func(a *initAnswers) { a.Gateway = true },
			modules: []string{"gateway"},
			key:     apiKeyRef,
		},
		{
			name: "key in file",
			edit: func(a *initAnswers) { a.APIKey = " ek_1 "; a.KeyInFile = true },
			key:  "ek_1",
		},
		{name: "bad store", edit: func(a *initAnswers) { a.Store = "redis" }, wantErr: true},
		{name: "bad bind", edit: func(a *initAnswers) { a.Gateway = true; a.GatewayBind = "nope" }, wantErr: true},
		{name: "bad url", edit: func(a *initAnswers) { a.BaseURL = "localhost" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := defaultAnswers()
			tt.edit(&a)
			cfg, err := buildConfig(a)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildConfig: %v", err)
			}
			if cfg.API.APIKey != tt.key {
				t.Errorf("api key = %q, want %q", cfg.API.APIKey, tt.key)
			}
			if len(cfg.Modules) != len(tt.modules) {
				t.Fatalf("modules = %v, want %v", cfg.Modules, tt.modules)
			}
			for _, id := range tt.modules {
				if _, ok := cfg.Modules[id]; !ok {
					t.Errorf("module %s missing", id)
				}
			}
		})
	}
}

func TestValidators(t *testing.T) {
	t.Parallel()

	if validateBaseURL("https://engram.example.com") != nil {
		t.Error("https URL rejected")
	}
	if validateBaseURL("engram.example.com") == nil {
		t.Error("URL without scheme accepted")
	}
	if validateBind("127.0.0.1:8080") != nil || validateBind("8080") == nil {
		t.Error("validateBind")
	}
	if notBlank("tenant")("  ") == nil {
		t.Error("blank accepted")
	}
}

func TestInit_NonInteractive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "recall.yaml")
	out, err := execute(t, "init", "--config", path, "--interactive=false", "--store", "sqlite", "--tenant", "acme")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "RECALL_API_KEY") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"tenant_id: acme", "store.sqlite", "${RECALL_API_KEY}"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config missing %q:\n%s", want, data)
		}
	}

	if _, err := execute(t, "init", "--config", path, "--interactive=false"); err == nil {
		t.Error("overwrite without --force should fail")
	}
}

func TestSessionsCommands(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := writeConfig(t, localConfig(t.TempDir()))

	out, err := execute(t, "-c", path, "--json", "sessions", "new", "-t", "Trip planning")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var created chat.Session
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if created.Title != "Trip planning" || created.ID == "" {
		t.Fatalf("created = %+v", created)
	}

	if _, err := execute(t, "-c", path, "sessions", "rename", created.ID, "Japan trip"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	out, err = execute(t, "-c", path, "sessions", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Japan trip") {
		t.Errorf("list output = %q", out)
	}

	if _, err := execute(t, "-c", path, "sessions", "switch", "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Errorf("switch missing: err = %v", err)
	}

	if _, err := execute(t, "-c", path, "sessions", "delete", "-y", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = execute(t, "-c", path, "--json", "sessions", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, created.ID) {
		t.Errorf("deleted session still listed: %q", out)
	}
}

type echoResponder struct{}

func (echoResponder) Chat(_ context.Context, req chat.ChatRequest) (chat.ChatReply, error) {
	return chat.ChatReply{
		Content:  "you said " + req.Messages[len(req.Messages)-1].Content,
		Memories: []memory.Memory{{ID: "m1", Text: "remembered fact"}},
	}, nil
}

func newREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	ctrl := chat.NewController(chat.NewStore(), echoResponder{}, nil, chat.ControllerConfig{
		RevealInterval: time.Millisecond,
	})
	return &repl{ctrl: ctrl, tui: tui.New(&buf, prefs.ThemeLight, 80), out: &buf}, &buf
}

func TestREPL_Send(t *testing.T) {
	t.Parallel()

	r, buf := newREPL(t)
	if quit := r.handle(context.Background(), "hello there"); quit {
		t.Fatal("message should not quit")
	}
	if !strings.Contains(buf.String(), "assistant: you said hello there") {
		t.Errorf("output = %q", buf.String())
	}
	p := r.ctrl.Store().Projection()
	if len(p.Messages) != 2 || p.Messages[1].Content != "you said hello there" {
		t.Errorf("messages = %+v", p.Messages)
	}

	buf.Reset()
	r.handle(context.Background(), "/context")
	if !strings.Contains(buf.String(), "remembered fact") {
		t.Errorf("context output = %q", buf.String())
	}
}

func TestREPL_Commands(t *testing.T) {
	t.Parallel()

	r, buf := newREPL(t)
	ctx := context.Background()
	store := r.ctrl.Store()

	r.handle(ctx, "/title nothing yet")
	if !strings.Contains(buf.String(), "no active session") {
		t.Errorf("title without session: %q", buf.String())
	}

	r.handle(ctx, "/new Groceries")
	first := store.CurrentSessionID()
	if first == "" {
		t.Fatal("/new did not create a session")
	}
	r.handle(ctx, "/new")
	if store.CurrentSessionID() == first {
		t.Fatal("second /new did not switch")
	}
	r.handle(ctx, "/switch "+first)
	if store.CurrentSessionID() != first {
		t.Error("/switch failed")
	}
	r.handle(ctx, "/title Shopping")
	if s, _ := store.Session(first); s.Title != "Shopping" {
		t.Errorf("title = %q", s.Title)
	}

	buf.Reset()
	r.handle(ctx, "/list")
	if !strings.Contains(buf.String(), "Shopping") {
		t.Errorf("list = %q", buf.String())
	}

	buf.Reset()
	r.handle(ctx, "/switch")
	r.handle(ctx, "/bogus")
	out := buf.String()
	if !strings.Contains(out, "/switch needs an argument") || !strings.Contains(out, "unknown command /bogus") {
		t.Errorf("errors = %q", out)
	}

	r.handle(ctx, "/delete "+first)
	if _, ok := store.Session(first); ok {
		t.Error("/delete left the session")
	}
	if !r.handle(ctx, "/quit") {
		t.Error("/quit should end the loop")
	}
}

func TestREPL_Run(t *testing.T) {
	t.Parallel()

	r, buf := newREPL(t)
	in := strings.NewReader("/new Notes\nhi\n/q\nnever sent\n")
	if err := r.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "you said hi") {
		t.Errorf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "never sent") {
		t.Error("input after /q was processed")
	}
}

type statusSeq struct {
	seq   []string
	calls int
}

func (s *statusSeq) ProcessingStatus(_ context.Context, id string) (engram.JobStatus, error) {
	st := s.seq[min(s.calls, len(s.seq)-1)]
	s.calls++
	return engram.JobStatus{JobID: id, Status: st}, nil
}

func TestPollJob(t *testing.T) {
	t.Parallel()

	c := &statusSeq{seq: []string{engram.JobPending, engram.JobProcessing, engram.JobCompleted}}
	var seen []string
	st, err := pollJob(context.Background(), c, "j1", true, time.Millisecond, func(s engram.JobStatus) {
		seen = append(seen, s.Status)
	})
	if err != nil {
		t.Fatalf("pollJob: %v", err)
	}
	if st.Status != engram.JobCompleted || len(seen) != 3 {
		t.Errorf("status = %s, seen = %v", st.Status, seen)
	}

	c = &statusSeq{seq: []string{engram.JobPending}}
	st, _ = pollJob(context.Background(), c, "j2", false, time.Millisecond, func(engram.JobStatus) {})
	if st.Status != engram.JobPending || c.calls != 1 {
		t.Errorf("without wait: status %s after %d calls", st.Status, c.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = &statusSeq{seq: []string{engram.JobProcessing}}
	if _, err := pollJob(ctx, c, "j3", true, time.Hour, func(engram.JobStatus) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestModalityForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want memory.Modality
	}{
		{"paper.PDF", memory.ModalityPDF},
		{"cat.jpeg", memory.ModalityImage},
		{"talk.mp4", memory.ModalityVideo},
		{"page.html", memory.ModalityWeb},
		{"notes.md", memory.ModalityText},
	}
	for _, tt := range tests {
		got, err := modalityForFile(tt.path, "", false)
		if err != nil || got != tt.want {
			t.Errorf("modalityForFile(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
	}
	if got, _ := modalityForFile("notes.md", "chat", true); got != memory.ModalityChat {
		t.Errorf("explicit type ignored: %q", got)
	}
	if _, err := modalityForFile("notes.md", "audio", true); err == nil {
		t.Error("unknown explicit type accepted")
	}
}

func TestReadChatExport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	items, err := readChatExport(write("bare.json", `[{"role":"user","content":"hi"}]`))
	if err != nil || len(items) != 1 || items[0]["content"] != "hi" {
		t.Errorf("bare: %v %v", items, err)
	}
	items, err = readChatExport(write("wrapped.json", `{"items":[{"a":1},{"a":2}]}`))
	if err != nil || len(items) != 2 {
		t.Errorf("wrapped: %v %v", items, err)
	}
	if _, err := readChatExport(write("empty.json", `{"items":[]}`)); err == nil {
		t.Error("empty export accepted")
	}
	if _, err := readChatExport(write("junk.json", `not json`)); err == nil {
		t.Error("junk accepted")
	}
}

func TestParseSettings(t *testing.T) {
	t.Parallel()

	got, err := parseSettings([]string{"token=abc", "max_pages=10", "recursive=true", "paths=[\"a\",\"b\"]"})
	if err != nil {
		t.Fatalf("parseSettings: %v", err)
	}
	if got["token"] != "abc" || got["max_pages"] != float64(10) || got["recursive"] != true {
		t.Errorf("settings = %#v", got)
	}
	if paths, ok := got["paths"].([]any); !ok || len(paths) != 2 {
		t.Errorf("paths = %#v", got["paths"])
	}
	if _, err := parseSettings([]string{"novalue"}); err == nil {
		t.Error("missing '=' accepted")
	}
	if _, err := parseSettings([]string{"=x"}); err == nil {
		t.Error("empty key accepted")
	}
}

func TestSubgraphText(t *testing.T) {
	t.Parallel()

	out := subgraphText(engram.Subgraph{
		Nodes: []map[string]any{{"id": "1", "label": "Ada"}, {"id": "2", "label": "Analytical Engine"}},
		Edges: []map[string]any{{"source": "1", "target": "2", "type": "worked_on"}},
	})
	if !strings.Contains(out, "2 nodes, 1 edges") || !strings.Contains(out, "Ada -[worked_on]-> Analytical Engine") {
		t.Errorf("out = %q", out)
	}
}

func TestServiceConfig(t *testing.T) {
	t.Parallel()

	cfg := serviceConfig("recall.yaml", "/var/lib/recall")
	if cfg.Name != "recall" {
		t.Errorf("name = %q", cfg.Name)
	}
	args := strings.Join(cfg.Arguments, " ")
	if !strings.HasPrefix(args, "service run --config /") || !strings.HasSuffix(args, "--data-dir /var/lib/recall") {
		t.Errorf("arguments = %q", args)
	}
}
