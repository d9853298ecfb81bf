package persist

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/flemzord/recall/internal/prefs"
)

// Preferences persistence.
const (
	PrefsStoreName = "recall-ui"
	PrefsVersion   = 1
)

// PrefsMigrations upgrades older preference blobs.
var PrefsMigrations = Migrations{
	0: migratePrefsV0,
}

// migratePrefsV0 fills identity fields absent from the unversioned layout,
// which only carried the theme and sidebar state.
func migratePrefsV0(state json.RawMessage) (json.RawMessage, error) {
	p := prefs.Defaults()
	if err := json.Unmarshal(state, &p); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// NewPrefsBridge returns the bridge for dashboard preferences.
func NewPrefsBridge(storage Storage, logger *slog.Logger) *Bridge[prefs.Preferences] {
	return NewBridge[prefs.Preferences](PrefsStoreName, storage, PrefsVersion, PrefsMigrations, logger)
}

// AttachPrefs hydrates store and mirrors its changes back.
func AttachPrefs(ctx context.Context, store *prefs.Store, storage Storage, logger *slog.Logger) (stop func()) {
	b := NewPrefsBridge(storage, logger)
	b.Hydrate(ctx, store.Restore)
	return b.Mirror(ctx, store.Subscribe, store.Snapshot)
}
