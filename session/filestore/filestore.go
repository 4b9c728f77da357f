// Package filestore provides a JSON file-backed session.Store giving
// the CLI a credential jar that survives between invocations.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/manimforge/go-manim-client/session"
	"github.com/pkg/errors"
)

type record struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Store persists named values in a single JSON file. Entries carry
// their own expiry, so a stale access token is reported as absent the
// same way an expired cookie would be.
type Store struct {
	path  string
	clock clockwork.Clock
	lock  sync.Mutex
}

var _ session.Store = (*Store)(nil)

// Option modifies a Store instance.
type Option func(*Store)

// WithClock sets the clock used for entry expiry (primarily for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a store backed by the file at path. The file and its
// directory are created on first write.
func New(path string, options ...Option) *Store {
	s := &Store{
		path:  path,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Get(name string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	records, err := s.load()
	if err != nil {
		return "", false
	}
	r, ok := records[name]
	if !ok {
		return "", false
	}
	if !r.ExpiresAt.IsZero() && !s.clock.Now().Before(r.ExpiresAt) {
		return "", false
	}
	return r.Value, true
}

func (s *Store) Set(name, value string) error {
	return s.SetTTL(name, value, 0)
}

func (s *Store) SetTTL(name, value string, ttl time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	records, err := s.load()
	if err != nil {
		return errors.Wrap(err, "[Store.SetTTL] load")
	}
	r := record{Value: value}
	if ttl > 0 {
		r.ExpiresAt = s.clock.Now().Add(ttl)
	}
	records[name] = r
	return s.save(records)
}

func (s *Store) Remove(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	records, err := s.load()
	if err != nil {
		return errors.Wrap(err, "[Store.Remove] load")
	}
	if _, ok := records[name]; !ok {
		return nil
	}
	delete(records, name)
	return s.save(records)
}

func (s *Store) load() (map[string]record, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, err
	}
	records := map[string]record{}
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) save(records map[string]record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[Store.save] mkdir")
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[Store.save] marshal")
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return errors.Wrap(err, "[Store.save] write")
	}
	return nil
}
