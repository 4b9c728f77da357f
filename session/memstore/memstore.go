// Package memstore provides the in-memory session.Store used by tests
// and by tab-scoped state that does not outlive the process.
package memstore

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/manimforge/go-manim-client/session"
)

// Shared is a storage region that several browsing contexts read and
// write through their own handles. Changes made through one handle are
// fanned out to subscribers registered on the others.
type Shared struct {
	clock clockwork.Clock

	lock    sync.RWMutex
	entries map[string]entry
	subs    map[int]subscriber
	nextSub int
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type subscriber struct {
	owner *Handle
	fn    func(name, value string)
}

// Option modifies a Shared instance.
type Option func(*Shared)

// WithClock sets the clock used for entry expiry (primarily for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(s *Shared) {
		s.clock = clock
	}
}

// NewShared creates an empty storage region.
func NewShared(options ...Option) *Shared {
	s := &Shared{
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]entry),
		subs:    make(map[int]subscriber),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Handle returns a view of the region belonging to one browsing
// context.
func (s *Shared) Handle() *Handle {
	return &Handle{shared: s}
}

// Handle is a single browsing context's view of a Shared region.
type Handle struct {
	shared *Shared
}

var (
	_ session.Store   = (*Handle)(nil)
	_ session.Watcher = (*Handle)(nil)
)

// New returns a stand-alone store not shared with any other context.
func New(options ...Option) *Handle {
	return NewShared(options...).Handle()
}

func (h *Handle) Get(name string) (string, bool) {
	s := h.shared
	s.lock.RLock()
	e, ok := s.entries[name]
	s.lock.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		// Lazy eviction on read.
		s.lock.Lock()
		if cur, ok := s.entries[name]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, name)
		}
		s.lock.Unlock()
		return "", false
	}
	return e.value, true
}

func (h *Handle) Set(name, value string) error {
	return h.SetTTL(name, value, 0)
}

func (h *Handle) SetTTL(name, value string, ttl time.Duration) error {
	s := h.shared
	s.lock.Lock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[name] = e
	notify := s.pendingNotifications(h)
	s.lock.Unlock()

	for _, fn := range notify {
		fn(name, value)
	}
	return nil
}

func (h *Handle) Remove(name string) error {
	s := h.shared
	s.lock.Lock()
	_, existed := s.entries[name]
	delete(s.entries, name)
	var notify []func(name, value string)
	if existed {
		notify = s.pendingNotifications(h)
	}
	s.lock.Unlock()

	for _, fn := range notify {
		fn(name, "")
	}
	return nil
}

// Subscribe registers fn for changes made through other handles of the
// same region. The returned cancel releases the subscription.
func (h *Handle) Subscribe(fn func(name, value string)) (cancel func()) {
	s := h.shared
	s.lock.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{owner: h, fn: fn}
	s.lock.Unlock()

	return func() {
		s.lock.Lock()
		delete(s.subs, id)
		s.lock.Unlock()
	}
}

// pendingNotifications collects the callbacks of every subscriber not
// owned by origin. Callers must hold the lock and invoke the returned
// functions after releasing it.
func (s *Shared) pendingNotifications(origin *Handle) []func(name, value string) {
	if len(s.subs) == 0 {
		return nil
	}
	fns := make([]func(name, value string), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.owner == origin {
			continue
		}
		fns = append(fns, sub.fn)
	}
	return fns
}
