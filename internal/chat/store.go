package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/recall/pkg/memory"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the session id generator. Defaults to random
// UUIDv4 strings.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

type settleMode int

const (
	settleFinalize settleMode = iota
	settleAbandon
)

// Store owns the session collection, the active session pointer and the
// working projection of the active conversation. It is the only writer of
// that state and is safe for concurrent use.
//
// While a session is active every projection mutation is written back to
// its record with a fresh UpdatedAt. With no active session the projection
// is ephemeral.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	currentID string

	// projection of the active session
	messages []Message
	context  []memory.Memory
	loading  bool

	// reveal is the in-flight streaming reveal, if any.
	reveal *Reveal

	subs    []subscriber
	nextSub int

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewStore creates an empty store with no active session.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat")
	return s
}

// CreateSession inserts a fresh empty session, makes it active and clears
// the previous projection. A blank title gets the default dated title.
// Any in-flight reveal is finalized into its own session first.
func (s *Store) CreateSession(title string) string {
	s.mu.Lock()
	events := s.settleLocked(settleFinalize)
	id, created := s.createLocked(title)
	events = append(events, created)
	s.mu.Unlock()

	s.logger.Debug("session created", "session_id", id)
	sessionsCreated.Inc()
	s.emit(events)
	return id
}

func (s *Store) createLocked(title string) (string, Event) {
	now := s.now()
	id := s.newID()
	for s.sessions[id] != nil {
		id = s.newID()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(now)
	}
	s.sessions[id] = &Session{
		ID:        id,
		Title:     title,
		Messages:  []Message{},
		Context:   []memory.Memory{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.currentID = id
	s.messages = nil
	s.context = nil
	return id, Event{Kind: EventSessionCreated, SessionID: id}
}

// SwitchSession makes id active and loads its record into the projection.
// The record's UpdatedAt is not touched.
func (s *Store) SwitchSession(id string) error {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}

	var events []Event
	if s.reveal != nil && s.reveal.sessionID != id {
		events = s.settleLocked(settleFinalize)
	}
	s.currentID = id
	s.messages = cloneMessages(rec.Messages)
	s.context = memory.CloneAll(rec.Context)
	events = append(events, Event{Kind: EventSessionSwitched, SessionID: id})
	s.mu.Unlock()

	s.emit(events)
	return nil
}

// DeleteSession removes a session. Deleting the active session clears the
// projection and leaves no session active. A reveal streaming into the
// deleted session is abandoned.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}

	var events []Event
	if s.reveal != nil && s.reveal.sessionID == id {
		events = s.settleLocked(settleAbandon)
	}
	delete(s.sessions, id)
	if s.currentID == id {
		s.currentID = ""
		s.messages = nil
		s.context = nil
	}
	events = append(events, Event{Kind: EventSessionDeleted, SessionID: id})
	s.mu.Unlock()

	s.logger.Debug("session deleted", "session_id", id)
	s.emit(events)
	return nil
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	rec.Title = title
	rec.UpdatedAt = s.now()
	s.mu.Unlock()

	s.emit([]Event{{Kind: EventSessionUpdated, SessionID: id}})
	return nil
}

// AddMessage appends m to the projection and, when a session is active,
// to its record. An in-flight reveal is finalized first so the reply it
// is filling keeps its place before m.
func (s *Store) AddMessage(m Message) {
	s.mu.Lock()
	events := s.settleLocked(settleFinalize)
	s.messages = append(s.messages, m)
	events = append(events, s.syncRecordLocked()...)
	s.mu.Unlock()

	messagesTotal.WithLabelValues(string(m.Role)).Inc()
	s.emit(events)
}

// BeginTurn files a user message and raises the loading flag in one step.
// When no session is active one is created first. It returns the session
// the message landed in, whether that session was just created, and the
// conversation including m.
func (s *Store) BeginTurn(m Message) (sessionID string, created bool, history []Message) {
	s.mu.Lock()
	events := s.settleLocked(settleFinalize)
	if s.currentID == "" {
		_, ev := s.createLocked("")
		events = append(events, ev)
		created = true
	}
	sessionID = s.currentID
	s.messages = append(s.messages, m)
	events = append(events, s.syncRecordLocked()...)
	if !s.loading {
		s.loading = true
		events = append(events, Event{Kind: EventLoadingChanged, SessionID: sessionID})
	}
	history = cloneMessages(s.messages)
	s.mu.Unlock()

	if created {
		s.logger.Debug("session created", "session_id", sessionID)
		sessionsCreated.Inc()
	}
	messagesTotal.WithLabelValues(string(m.Role)).Inc()
	s.emit(events)
	return sessionID, created, history
}

// AppendToSession appends m to the record with the given id and replaces
// its context, whether or not it is active.
func (s *Store) AppendToSession(id string, m Message, memories []memory.Memory) error {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if id == s.currentID {
		s.mu.Unlock()
		s.AddMessage(m)
		s.SetContext(memories)
		return nil
	}
	rec.Messages = append(rec.Messages, m)
	rec.Context = memory.CloneAll(memories)
	if rec.Context == nil {
		rec.Context = []memory.Memory{}
	}
	rec.UpdatedAt = s.now()
	s.mu.Unlock()

	messagesTotal.WithLabelValues(string(m.Role)).Inc()
	s.emit([]Event{{Kind: EventSessionUpdated, SessionID: id}})
	return nil
}

// UpdateLastMessage replaces the content of the final projection message.
// Repeating the same content is a no-op.
func (s *Store) UpdateLastMessage(content string) error {
	s.mu.Lock()
	n := len(s.messages)
	if n == 0 {
		s.mu.Unlock()
		return ErrNoMessages
	}
	if s.messages[n-1].Content == content {
		s.mu.Unlock()
		return nil
	}
	s.messages[n-1].Content = content
	events := s.syncRecordLocked()
	s.mu.Unlock()

	s.emit(events)
	return nil
}

// SetContext replaces the projection's retrieval context wholesale.
func (s *Store) SetContext(memories []memory.Memory) {
	s.mu.Lock()
	s.context = memory.CloneAll(memories)
	events := s.syncRecordLocked()
	s.mu.Unlock()

	s.emit(events)
}

// ClearContext empties the projection's retrieval context.
func (s *Store) ClearContext() {
	s.SetContext(nil)
}

// SetLoading toggles the transient loading flag. It is never persisted.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	if s.loading == loading {
		s.mu.Unlock()
		return
	}
	s.loading = loading
	id := s.currentID
	s.mu.Unlock()

	s.emit([]Event{{Kind: EventLoadingChanged, SessionID: id}})
}

// Loading reports the transient loading flag.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// CurrentSessionID returns the active session id, or "" when none.
func (s *Store) CurrentSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// CurrentSession returns a copy of the active record.
func (s *Store) CurrentSession() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return Session{}, false
	}
	return s.sessions[s.currentID].clone(), true
}

// Session returns a copy of the record with the given id.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.clone(), true
}

// SessionList returns copies of all records, most recently updated first.
// Ties are broken by CreatedAt (newest first) and then by id.
func (s *Store) SessionList() []Session {
	s.mu.RLock()
	list := make([]Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		list = append(list, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return list
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Projection returns a copy of the working view.
func (s *Store) Projection() Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := Projection{
		SessionID: s.currentID,
		Messages:  cloneMessages(s.messages),
		Context:   memory.CloneAll(s.context),
		Loading:   s.loading,
	}
	if p.Messages == nil {
		p.Messages = []Message{}
	}
	if p.Context == nil {
		p.Context = []memory.Memory{}
	}
	return p
}

// Snapshot returns the persisted subset: every record and the active id.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Sessions:         make(map[string]Session, len(s.sessions)),
		CurrentSessionID: s.currentID,
	}
	for id, rec := range s.sessions {
		st.Sessions[id] = rec.clone()
	}
	return st
}

// Restore replaces the collection and active id with st. An active id
// that is not in st.Sessions is dropped. Any in-flight reveal is abandoned
// and the loading flag is cleared.
func (s *Store) Restore(st State) {
	s.mu.Lock()
	s.settleLocked(settleAbandon)

	s.sessions = make(map[string]*Session, len(st.Sessions))
	for key, rec := range st.Sessions {
		cp := rec.clone()
		if cp.ID == "" {
			cp.ID = key
		}
		if cp.Messages == nil {
			cp.Messages = []Message{}
		}
		if cp.Context == nil {
			cp.Context = []memory.Memory{}
		}
		s.sessions[cp.ID] = &cp
	}

	s.currentID = ""
	s.messages = nil
	s.context = nil
	s.loading = false
	if rec, ok := s.sessions[st.CurrentSessionID]; ok {
		s.currentID = rec.ID
		s.messages = cloneMessages(rec.Messages)
		s.context = memory.CloneAll(rec.Context)
	}
	id := s.currentID
	s.mu.Unlock()

	s.emit([]Event{{Kind: EventRestored, SessionID: id}})
}

// Subscribe registers fn for change notifications. fn runs synchronously
// after the change is applied, outside the store lock, so it may call back
// into the store. The returned func unregisters fn.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribePersisted calls fn after every change that may affect the
// persisted subset.
func (s *Store) SubscribePersisted(fn func()) (unsubscribe func()) {
	return s.Subscribe(func(e Event) {
		if e.Kind.Persisted() {
			fn()
		}
	})
}

// Reveal streams chunks into a new assistant message appended to the
// active conversation. See the Reveal type for lifetime rules.
func (s *Store) Reveal(ctx context.Context, chunks <-chan string, memories []memory.Memory) *Reveal {
	ctx, cancel := context.WithCancel(ctx)
	return s.startReveal(ctx, cancel, chunks, memories, nil)
}

// RevealText reveals text one whitespace-separated token per interval.
// The final content is the tokens joined by single spaces.
func (s *Store) RevealText(ctx context.Context, text string, interval time.Duration, memories []memory.Memory) *Reveal {
	full := strings.Join(strings.Fields(text), " ")
	ctx, cancel := context.WithCancel(ctx)
	return s.startReveal(ctx, cancel, SimulateTokens(ctx, text, interval), memories, &full)
}

// ActiveReveal returns the in-flight reveal, or nil.
func (s *Store) ActiveReveal() *Reveal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reveal
}

// CancelReveal abandons the in-flight reveal, keeping whatever text it
// already wrote. It reports whether a reveal was running.
func (s *Store) CancelReveal() bool {
	r := s.ActiveReveal()
	if r == nil {
		return false
	}
	return s.abandonReveal(r)
}

func (s *Store) startReveal(ctx context.Context, cancel context.CancelFunc, chunks <-chan string, memories []memory.Memory, full *string) *Reveal {
	r := &Reveal{
		store:    s,
		memories: memory.CloneAll(memories),
		full:     full,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   RevealRunning,
	}

	s.mu.Lock()
	events := s.settleLocked(settleFinalize)
	s.messages = append(s.messages, Message{Role: RoleAssistant})
	r.index = len(s.messages) - 1
	r.sessionID = s.currentID
	events = append(events, s.syncRecordLocked()...)
	s.reveal = r
	if !s.loading {
		s.loading = true
		events = append(events, Event{Kind: EventLoadingChanged, SessionID: s.currentID})
	}
	s.mu.Unlock()

	messagesTotal.WithLabelValues(string(RoleAssistant)).Inc()
	s.emit(events)
	go r.run(ctx, chunks)
	return r
}

// revealAppend adds chunk to r's running text and writes it through. It
// returns false once r is no longer the in-flight reveal.
func (s *Store) revealAppend(r *Reveal, chunk string) bool {
	s.mu.Lock()
	if s.reveal != r {
		s.mu.Unlock()
		return false
	}
	r.content += chunk
	events := s.writeRevealLocked(r, r.content, false)
	s.mu.Unlock()

	revealChunks.Inc()
	s.emit(events)
	return true
}

// completeReveal settles r once its chunk stream closes. A stream cut
// short by cancellation, or one that stopped before the whole reply was
// written, is abandoned instead so partial text never counts as complete.
func (s *Store) completeReveal(r *Reveal, interrupted bool) {
	s.mu.Lock()
	if s.reveal != r {
		s.mu.Unlock()
		return
	}
	short := r.full != nil && r.content != *r.full
	if short || (interrupted && r.full == nil) {
		events := s.settleLocked(settleAbandon)
		s.mu.Unlock()
		s.emit(events)
		return
	}
	s.reveal = nil
	r.cancel()
	r.status = RevealCompleted
	events := s.writeRevealLocked(r, r.content, true)
	events = append(events, s.clearLoadingLocked()...)
	s.mu.Unlock()

	revealsTotal.WithLabelValues(RevealCompleted.String()).Inc()
	s.emit(events)
}

func (s *Store) abandonReveal(r *Reveal) bool {
	s.mu.Lock()
	r.cancel()
	if s.reveal != r {
		s.mu.Unlock()
		return false
	}
	events := s.settleLocked(settleAbandon)
	s.mu.Unlock()

	s.emit(events)
	return true
}

// settleLocked ends the in-flight reveal. Finalize writes the full reply
// and its memories into the origin session at once; abandon leaves the
// partial text in place. Both clear the loading flag.
func (s *Store) settleLocked(mode settleMode) []Event {
	r := s.reveal
	if r == nil {
		return nil
	}
	s.reveal = nil
	r.cancel()

	var events []Event
	if mode == settleFinalize {
		r.status = RevealFinalized
		if r.full != nil {
			r.content = *r.full
		}
		events = s.writeRevealLocked(r, r.content, true)
	} else {
		r.status = RevealAbandoned
	}
	revealsTotal.WithLabelValues(r.status.String()).Inc()
	return append(events, s.clearLoadingLocked()...)
}

// writeRevealLocked writes text into r's message in its origin session,
// and the reveal memories into that session's context when withContext is
// set. Nothing is written if the origin no longer exists.
func (s *Store) writeRevealLocked(r *Reveal, text string, withContext bool) []Event {
	if r.sessionID == "" {
		if s.currentID != "" || r.index >= len(s.messages) {
			return nil
		}
		s.messages[r.index].Content = text
		if withContext {
			s.context = memory.CloneAll(r.memories)
		}
		return []Event{{Kind: EventProjectionChanged}}
	}

	rec, ok := s.sessions[r.sessionID]
	if !ok {
		return nil
	}
	if r.index < len(rec.Messages) {
		rec.Messages[r.index].Content = text
	}
	if withContext {
		rec.Context = memory.CloneAll(r.memories)
		if rec.Context == nil {
			rec.Context = []memory.Memory{}
		}
	}
	rec.UpdatedAt = s.now()
	if s.currentID == r.sessionID {
		s.messages = cloneMessages(rec.Messages)
		s.context = memory.CloneAll(rec.Context)
	}
	return []Event{{Kind: EventSessionUpdated, SessionID: r.sessionID}}
}

// syncRecordLocked mirrors the projection into the active record.
func (s *Store) syncRecordLocked() []Event {
	if s.currentID == "" {
		return []Event{{Kind: EventProjectionChanged}}
	}
	rec := s.sessions[s.currentID]
	rec.Messages = cloneMessages(s.messages)
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}
	rec.Context = memory.CloneAll(s.context)
	if rec.Context == nil {
		rec.Context = []memory.Memory{}
	}
	rec.UpdatedAt = s.now()
	return []Event{{Kind: EventSessionUpdated, SessionID: s.currentID}}
}

func (s *Store) clearLoadingLocked() []Event {
	if !s.loading {
		return nil
	}
	s.loading = false
	return []Event{{Kind: EventLoadingChanged, SessionID: s.currentID}}
}

func (s *Store) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, e := range events {
		for _, sub := range subs {
			sub.fn(e)
		}
	}
}
