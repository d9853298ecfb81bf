package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
)

// echoResponder answers every turn with a fixed reply.
type echoResponder struct {
	reply string
	err   error
}

func (e *echoResponder) Chat(_ context.Context, _ chat.ChatRequest) (chat.ChatReply, error) {
	if e.err != nil {
		return chat.ChatReply{}, e.err
	}
	return chat.ChatReply{Content: e.reply}, nil
}

// fakeMemory implements MemoryAPI. Methods not overridden panic through
// the nil embedded interface, so tests only stub what they call.
type fakeMemory struct {
	MemoryAPI

	mu       sync.Mutex
	searches []engram.SearchRequest
	err      error
}

func (f *fakeMemory) SearchMemories(_ context.Context, req engram.SearchRequest) (engram.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req)
	if f.err != nil {
		return engram.SearchResponse{}, f.err
	}
	return engram.SearchResponse{Query: req.Query, TotalFound: 0}, nil
}

func (f *fakeMemory) IngestURL(_ context.Context, req engram.IngestURLRequest) (engram.Job, error) {
	return engram.Job{JobID: "job-7", Status: engram.JobPending}, nil
}

func (f *fakeMemory) DeleteMemory(_ context.Context, id string) error {
	if id == "missing" {
		return &engram.APIError{StatusCode: 404, Message: "memory not found"}
	}
	return nil
}

func (f *fakeMemory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMemory) recordedSearches() []engram.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engram.SearchRequest(nil), f.searches...)
}

func (f *fakeMemory) Health(context.Context) (engram.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return engram.Health{}, f.err
	}
	return engram.Health{Status: "healthy"}, nil
}

type recordingTracker struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingTracker) Track(jobID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, jobID)
}

func (r *recordingTracker) tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type testEnv struct {
	g        *Gateway
	base     string
	store    *chat.Store
	prefs    *prefs.Store
	notifier *prefs.Notifier
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startGateway serves a gateway on an ephemeral loopback port.
func startGateway(t *testing.T, cfg Config, deps Deps) *testEnv {
	t.Helper()

	store := chat.NewStore(chat.WithLogger(testLogger()))
	notifier := prefs.NewNotifier(time.Minute, testLogger())
	if deps.Controller == nil {
		deps.Controller = chat.NewController(store, &echoResponder{reply: "hello from memory"}, notifier,
			chat.ControllerConfig{RevealInterval: time.Millisecond, Logger: testLogger()})
	}
	if deps.Prefs == nil {
		deps.Prefs = prefs.NewStore(prefs.Defaults())
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier
	}

	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:0"
	}
	cfg.defaults()
	g := &Gateway{config: cfg, logger: testLogger()}
	if err := g.serve(deps); err != nil {
		t.Fatalf("serve: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	return &testEnv{
		g:        g,
		base:     "http://" + g.Addr().String(),
		store:    deps.Controller.Store(),
		prefs:    deps.Prefs,
		notifier: deps.Notifier,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.base+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	return doc.Content[0]
}

// syncBuffer is a bytes.Buffer safe to read while the server writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
