// Package prefs holds dashboard preferences and transient notifications.
package prefs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Theme is the dashboard color scheme.
type Theme string

// Themes.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

var (
	// ErrInvalidTheme indicates an unknown theme name.
	ErrInvalidTheme = errors.New("prefs: invalid theme")

	// ErrEmptyIdentity indicates a blank tenant or user id.
	ErrEmptyIdentity = errors.New("prefs: tenant and user ids must not be empty")
)

// StoreService is the service name of the application's preferences *Store.
const StoreService = "prefs.store"

// Preferences is the persisted UI state.
type Preferences struct {
	Theme            Theme  `json:"theme"`
	SidebarCollapsed bool   `json:"sidebarCollapsed"`
	TenantID         string `json:"tenantId"`
	UserID           string `json:"userId"`
}

// Defaults returns the preferences used before anything is persisted.
func Defaults() Preferences {
	return Preferences{
		Theme:    ThemeSystem,
		TenantID: "default",
		UserID:   "default",
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Theme            *Theme  `json:"theme,omitempty"`
	SidebarCollapsed *bool   `json:"sidebarCollapsed,omitempty"`
	TenantID         *string `json:"tenantId,omitempty"`
	UserID           *string `json:"userId,omitempty"`
}

// Store guards the current preferences and notifies subscribers of changes.
type Store struct {
	mu    sync.RWMutex
	prefs Preferences
	subs  map[int]func()
	next  int
}

// NewStore creates a store holding initial.
func NewStore(initial Preferences) *Store {
	return &Store{prefs: initial, subs: make(map[int]func())}
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Snapshot is Get, named for the persistence bridge.
func (s *Store) Snapshot() Preferences { return s.Get() }

// Restore replaces the preferences. Invalid fields fall back to defaults.
func (s *Store) Restore(p Preferences) {
	def := Defaults()
	if !p.Theme.Valid() {
		p.Theme = def.Theme
	}
	if strings.TrimSpace(p.TenantID) == "" {
		p.TenantID = def.TenantID
	}
	if strings.TrimSpace(p.UserID) == "" {
		p.UserID = def.UserID
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	s.notify()
}

// SetTheme changes the theme.
func (s *Store) SetTheme(t Theme) error {
	return s.Apply(Patch{Theme: &t})
}

// ToggleSidebar flips the sidebar state and returns the new value.
func (s *Store) ToggleSidebar() bool {
	s.mu.Lock()
	s.prefs.SidebarCollapsed = !s.prefs.SidebarCollapsed
	v := s.prefs.SidebarCollapsed
	s.mu.Unlock()
	s.notify()
	return v
}

// SetIdentity sets the tenant and user ids sent with API requests.
func (s *Store) SetIdentity(tenantID, userID string) error {
	return s.Apply(Patch{TenantID: &tenantID, UserID: &userID})
}

// Apply validates and applies a partial update atomically.
func (s *Store) Apply(p Patch) error {
	if p.Theme != nil && !p.Theme.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, *p.Theme)
	}
	if (p.TenantID != nil && strings.TrimSpace(*p.TenantID) == "") ||
		(p.UserID != nil && strings.TrimSpace(*p.UserID) == "") {
		return ErrEmptyIdentity
	}

	s.mu.Lock()
	if p.Theme != nil {
		s.prefs.Theme = *p.Theme
	}
	if p.SidebarCollapsed != nil {
		s.prefs.SidebarCollapsed = *p.SidebarCollapsed
	}
	if p.TenantID != nil {
		s.prefs.TenantID = strings.TrimSpace(*p.TenantID)
	}
	if p.UserID != nil {
		s.prefs.UserID = strings.TrimSpace(*p.UserID)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Subscribe registers fn to run after every change.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
