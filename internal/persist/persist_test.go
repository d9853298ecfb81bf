package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/localstore"
	"github.com/flemzord/recall/internal/prefs"
)

type counter struct {
	N     int    `json:"n"`
	Label string `json:"label"`
}

func TestBridge_SaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	b := NewBridge[counter]("c", storage, 3, nil, nil)

	if err := b.Save(ctx, counter{N: 7, Label: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _, _ := storage.GetItem(ctx, "c")
	var env struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != 3 {
		t.Errorf("envelope = %s (err %v)", raw, err)
	}

	got, found, err := b.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if got != (counter{N: 7, Label: "x"}) {
		t.Errorf("got %+v", got)
	}
}

func TestBridge_MigratesLegacy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	_ = storage.SetItem(ctx, "c", []byte(`{"n":1}`))

	migrations := Migrations{
		0: func(s json.RawMessage) (json.RawMessage, error) {
			var c counter
			if err := json.Unmarshal(s, &c); err != nil {
				return nil, err
			}
			c.Label = "from-v0"
			return json.Marshal(c)
		},
		1: func(s json.RawMessage) (json.RawMessage, error) {
			var c counter
			if err := json.Unmarshal(s, &c); err != nil {
				return nil, err
			}
			c.N *= 10
			return json.Marshal(c)
		},
	}
	b := NewBridge[counter]("c", storage, 2, migrations, nil)

	var got counter
	if !b.Hydrate(ctx, func(c counter) { got = c }) {
		t.Fatal("Hydrate should succeed")
	}
	if got != (counter{N: 10, Label: "from-v0"}) {
		t.Errorf("got %+v", got)
	}
}

func TestBridge_FailuresKeepDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		blob    string
		wantErr error
	}{
		{name: "corrupt", blob: `{not json`},
		{name: "future version", blob: `{"version":9,"state":{"n":1}}`, wantErr: ErrFutureVersion},
		{name: "migration gap", blob: `{"version":0,"state":{"n":1}}`, wantErr: ErrNoMigration},
		{name: "bad state", blob: `{"version":1,"state":{"n":"one"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			storage := localstore.NewMemoryStorage()
			_ = storage.SetItem(ctx, "c", []byte(tt.blob))
			b := NewBridge[counter]("c", storage, 1, nil, nil)

			called := false
			if b.Hydrate(ctx, func(counter) { called = true }) || called {
				t.Error("Hydrate should leave defaults in place")
			}
			_, _, err := b.Load(ctx)
			if err == nil {
				t.Fatal("Load should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBridge_MissingValue(t *testing.T) {
	t.Parallel()

	b := NewBridge[counter]("absent", localstore.NewMemoryStorage(), 1, nil, nil)
	if b.Hydrate(context.Background(), func(counter) { t.Error("into called") }) {
		t.Error("Hydrate should report false")
	}
}

func TestChatPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewFileStorage(t.TempDir())
	clock := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	now := func() time.Time { return clock }

	src := chat.NewStore(chat.WithClock(now))
	stop := AttachChat(ctx, src, storage, nil)
	a := src.CreateSession("first")
	src.AddMessage(chat.Message{Role: chat.RoleUser, Content: "hello"})
	src.AddMessage(chat.Message{Role: chat.RoleAssistant, Content: "hi there"})
	b := src.CreateSession("second")
	if err := src.SwitchSession(a); err != nil {
		t.Fatal(err)
	}
	stop()

	dst := chat.NewStore(chat.WithClock(now))
	AttachChat(ctx, dst, storage, nil)

	if dst.CurrentSessionID() != a {
		t.Errorf("active = %q, want %q", dst.CurrentSessionID(), a)
	}
	for _, id := range []string{a, b} {
		want, _ := src.Session(id)
		got, ok := dst.Session(id)
		if !ok {
			t.Fatalf("session %q not restored", id)
		}
		if got.Title != want.Title || !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
			t.Errorf("session %q = %+v, want %+v", id, got, want)
		}
		if len(got.Messages) != len(want.Messages) {
			t.Fatalf("session %q has %d messages, want %d", id, len(got.Messages), len(want.Messages))
		}
		for i := range want.Messages {
			if got.Messages[i] != want.Messages[i] {
				t.Errorf("message %d = %+v, want %+v", i, got.Messages[i], want.Messages[i])
			}
		}
	}
	if p := dst.Projection(); len(p.Messages) != 2 {
		t.Errorf("projection not hydrated: %+v", p)
	}
}

func TestChatPersistence_ConcurrentWritesKeepLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for round := range 50 {
		storage := localstore.NewMemoryStorage()
		store := chat.NewStore()
		stop := AttachChat(ctx, store, storage, nil)

		ids := make([]string, 8)
		for i := range ids {
			ids[i] = store.CreateSession("")
		}
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.UpdateSessionTitle(id, fmt.Sprintf("renamed %d", i))
			}()
		}
		wg.Wait()
		stop()

		got, found, err := NewChatBridge(storage, nil).Load(ctx)
		if err != nil || !found {
			t.Fatalf("round %d: Load = %v, %v", round, found, err)
		}
		for i, id := range ids {
			want := fmt.Sprintf("renamed %d", i)
			if title := got.Sessions[id].Title; title != want {
				t.Fatalf("round %d: stored title of %s = %q, want %q", round, id, title, want)
			}
		}
	}
}

func TestChatPersistence_LegacyList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	legacy := `{
		"sessions": [
			{"id":"old-1","title":"Legacy","messages":[{"role":"user","content":"q"}],"context":[],
			 "createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-02T00:00:00Z"}
		],
		"currentSessionId":"old-1"
	}`
	_ = storage.SetItem(ctx, ChatStoreName, []byte(legacy))

	s := chat.NewStore()
	AttachChat(ctx, s, storage, nil)

	cur, ok := s.CurrentSession()
	if !ok || cur.ID != "old-1" || cur.Title != "Legacy" || len(cur.Messages) != 1 {
		t.Fatalf("current = %+v ok=%v", cur, ok)
	}
}

func TestChatPersistence_CorruptBlobKeepsDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	_ = storage.SetItem(ctx, ChatStoreName, []byte(`{"version":1,"state":`))

	s := chat.NewStore()
	AttachChat(ctx, s, storage, nil)

	if s.Len() != 0 || s.CurrentSessionID() != "" {
		t.Errorf("store not at defaults: len=%d active=%q", s.Len(), s.CurrentSessionID())
	}
}

func TestChatPersistence_LoadingNotPersisted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	s := chat.NewStore()
	AttachChat(ctx, s, storage, nil)
	s.CreateSession("")
	s.SetLoading(true)

	raw, _, _ := storage.GetItem(ctx, ChatStoreName)
	var env struct {
		State map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	for key := range env.State {
		if key != "sessions" && key != "currentSessionId" {
			t.Errorf("unexpected persisted field %q", key)
		}
	}
}

func TestPrefsPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := localstore.NewMemoryStorage()
	_ = storage.SetItem(ctx, PrefsStoreName, []byte(`{"theme":"dark","sidebarCollapsed":true}`))

	p := prefs.NewStore(prefs.Defaults())
	AttachPrefs(ctx, p, storage, nil)

	got := p.Get()
	if got.Theme != prefs.ThemeDark || !got.SidebarCollapsed || got.TenantID != "default" {
		t.Errorf("hydrated = %+v", got)
	}

	if err := p.SetIdentity("acme", "u1"); err != nil {
		t.Fatal(err)
	}
	b := NewPrefsBridge(storage, nil)
	saved, found, err := b.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: %v", err)
	}
	if saved.TenantID != "acme" || saved.UserID != "u1" || saved.Theme != prefs.ThemeDark {
		t.Errorf("saved = %+v", saved)
	}
}
