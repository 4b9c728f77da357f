// Package theme owns the dark-mode display preference and keeps it
// synchronized across browsing contexts through the shared preference
// storage.
package theme

import (
	"strconv"
	"sync"

	"github.com/manimforge/go-manim-client/session"
	"github.com/rs/zerolog"
)

// DocumentFlag applies the preference to the rendered document (the
// equivalent of toggling the root element's dark class). A nil flag
// means there is no document to update and applying is a no-op.
type DocumentFlag func(dark bool)

// Store keeps the in-memory preference, the persisted value, and the
// document flag in lock-step. At rest all three agree; a cross-context
// change is reconciled by the subscription handler in one synchronous
// step.
type Store struct {
	prefs session.Store
	flag  DocumentFlag
	log   zerolog.Logger

	lock   sync.Mutex
	dark   bool
	cancel func()
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithDocumentFlag sets the document-level visual flag applier.
func WithDocumentFlag(flag DocumentFlag) Option {
	return func(s *Store) {
		s.flag = flag
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a theme store over the shared preference storage.
// Call Init before use and Cleanup on teardown.
func NewStore(prefs session.Store, options ...Option) *Store {
	s := &Store{
		prefs: prefs,
		log:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Init reads the persisted preference (default false when absent),
// applies it, and subscribes to changes made in other contexts. Safe
// to call again after Cleanup; calling it twice replaces the previous
// subscription rather than leaking it.
func (s *Store) Init() {
	value, ok := s.prefs.Get(session.DarkModeKey)
	dark := ok && value == "true"

	s.lock.Lock()
	s.dark = dark
	s.apply(dark)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if watcher, ok := s.prefs.(session.Watcher); ok {
		s.cancel = watcher.Subscribe(s.onStorageChange)
	}
	s.lock.Unlock()
}

// DarkMode returns the in-memory preference.
func (s *Store) DarkMode() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dark
}

// Toggle flips the preference. Memory, persisted value, and document
// flag all change in the same synchronous step.
func (s *Store) Toggle() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.set(!s.dark)
}

// Set forces the preference to v with the same atomicity as Toggle.
func (s *Store) Set(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.set(v)
}

// Cleanup releases the change subscription registered by Init. Must be
// called on teardown so repeated Init/Cleanup cycles do not accumulate
// listeners.
func (s *Store) Cleanup() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// set updates all three representations. Callers hold the lock.
func (s *Store) set(v bool) {
	s.dark = v
	if err := s.prefs.Set(session.DarkModeKey, strconv.FormatBool(v)); err != nil {
		s.log.Error().Err(err).Msg("persisting theme preference failed")
	}
	s.apply(v)
}

// apply updates the document flag. Callers hold the lock.
func (s *Store) apply(v bool) {
	if s.flag != nil {
		s.flag(v)
	}
}

// onStorageChange reconciles a preference change made in another
// browsing context. The originating context is never notified of its
// own writes, so no re-persist is needed here.
func (s *Store) onStorageChange(name, value string) {
	if name != session.DarkModeKey {
		return
	}
	dark := value == "true"

	s.lock.Lock()
	s.dark = dark
	s.apply(dark)
	s.lock.Unlock()

	s.log.Debug().Bool("dark", dark).Msg("theme synchronized from another context")
}
