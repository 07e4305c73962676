package web

import (
	"crypto/rand"
	"encoding/json"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/ops"
)

// Session is one open form page tracked over HTTP.
type Session struct {
	ID    string
	Label string
	ctl   *draft.Controller[json.RawMessage]
}

// Controller returns the draft controller behind the session.
func (s *Session) Controller() *draft.Controller[json.RawMessage] { return s.ctl }

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	draft.Snapshot[json.RawMessage]
	Data json.RawMessage `json:"data"`
}

// View snapshots the session for a response body.
func (s *Session) View() SessionView {
	return SessionView{
		ID:       s.ID,
		Label:    s.Label,
		Snapshot: s.ctl.Snapshot(),
		Data:     s.ctl.Data(),
	}
}

// OpenInput describes a form page being mounted.
type OpenInput struct {
	Key     string          `json:"key"`
	Label   string          `json:"label,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
}

// Sessions tracks the controllers of every open page. All of them share one
// unload hub so a shutdown flushes each pending draft.
type Sessions struct {
	store  *draft.Store
	cfg    *config.Config
	unload *draft.Unload
	log    zerolog.Logger

	mu   sync.Mutex
	byID map[string]*Session
}

// NewSessions creates an empty registry over store.
func NewSessions(store *draft.Store, cfg *config.Config, log zerolog.Logger) *Sessions {
	return &Sessions{
		store:  store,
		cfg:    cfg,
		unload: draft.NewUnload(),
		log:    log,
		byID:   make(map[string]*Session),
	}
}

// Open mounts a controller for input.Key. A fresh stored draft puts the new
// session straight into the recovered state.
func (s *Sessions) Open(input OpenInput) (*Session, error) {
	key, err := ops.ValidateKey(input.Key)
	if err != nil {
		return nil, err
	}
	if len(input.Data) > 0 && !json.Valid(input.Data) {
		return nil, errors.NewInvalidRequest("data must be valid JSON")
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(s.store.Clock().Now()), entropy)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	ctl := draft.New(s.store, input.Data, draft.Options{
		Key:      key,
		Enabled:  input.Enabled,
		MaxAge:   s.cfg.MaxAge(),
		Debounce: s.cfg.Debounce(),
		Unload:   s.unload,
		Logger:   &s.log,
	})

	sess := &Session{ID: id.String(), Label: input.Label, ctl: ctl}
	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()

	s.log.Debug().Str("session", sess.ID).Str("draft_key", key).Str("status", string(ctl.Status())).Msg("session opened")
	return sess, nil
}

// Get returns the session with id.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return sess, nil
}

// Close unmounts the session. A pending debounced write is dropped, as when
// a page navigates within the app; the stored draft is left alone.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if !ok {
		return sessionNotFound(id)
	}
	sess.ctl.Close()
	return nil
}

// List returns views of every open session ordered by ID.
func (s *Sessions) List() []SessionView {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.byID))
	for _, sess := range s.byID {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	return views
}

// Unload flushes every enabled session, as if all pages were closing.
func (s *Sessions) Unload() {
	s.unload.Fire()
}

// Shutdown flushes and then closes every session.
func (s *Sessions) Shutdown() {
	s.Unload()

	s.mu.Lock()
	sessions := s.byID
	s.byID = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.ctl.Close()
	}
}

func sessionNotFound(id string) *errors.DraftError {
	return &errors.DraftError{
		Code:    errors.ErrNotFound,
		Status:  404,
		Message: "session not found: " + id,
		Details: map[string]any{"session": id},
	}
}
