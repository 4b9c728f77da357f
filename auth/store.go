// Package auth owns the authenticated-session lifecycle: login,
// registration, waitlist signup, logout, and startup hydration.
package auth

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/manimforge/go-manim-client/session"
	"github.com/manimforge/go-manim-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	waitlistPath    = "/api/auth/waiting-list/"
	registerPath    = "/api/auth/register/"
	loginPath       = "/api/auth/login/"
	verifyEmailPath = "/api/auth/verify-email/"
	profilePath     = "/api/auth/profile/"
)

// State is a snapshot of the session. Operations record their outcome
// here rather than returning errors: callers observe success through
// IsAuthenticated and failure through Error.
type State struct {
	IsAuthenticated bool
	User            *User
	IsLoading       bool
	Error           string
}

// projection is the reduced snapshot persisted to tab-scoped storage
// so a reload shows a logged-in shell instantly, pending re-validation
// by InitAuth.
type projection struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

// Stores holds the two storage scopes the Store writes to.
type Stores struct {
	Credentials session.Store // cookie-scoped bearer credentials
	Tab         session.Store // tab-scoped session projection
}

// Store owns the session state machine.
type Store struct {
	api    *transport.Client
	stores Stores
	log    zerolog.Logger

	lock  sync.Mutex
	state State
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithLogger sets the logger used for session lifecycle logging.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a session store. The initial state is hydrated from
// the persisted projection when one exists; InitAuth re-validates it.
func NewStore(api *transport.Client, stores Stores, options ...Option) (*Store, error) {
	if api == nil {
		return nil, errors.New("[auth.NewStore] transport client is required")
	}
	if stores.Credentials == nil {
		return nil, errors.New("[auth.NewStore] credential store is required")
	}
	if stores.Tab == nil {
		return nil, errors.New("[auth.NewStore] tab store is required")
	}

	s := &Store{
		api:    api,
		stores: stores,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.hydrate()
	return s, nil
}

// State returns a snapshot of the current session state.
func (s *Store) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := s.state
	if st.User != nil {
		user := *st.User
		st.User = &user
	}
	return st
}

// InitAuth hydrates the session on startup. With no access credential
// present it settles on unauthenticated without a network call;
// otherwise it fetches the profile and either confirms the session or
// clears both credentials. Idempotent and safe to call repeatedly.
func (s *Store) InitAuth(ctx context.Context) {
	if _, ok := s.stores.Credentials.Get(session.AccessTokenKey); !ok {
		s.update(func(st *State) {
			st.IsAuthenticated = false
			st.User = nil
		})
		return
	}

	s.begin()
	var user User
	if err := s.api.Get(ctx, profilePath, &user); err != nil {
		s.log.Warn().Err(err).Msg("session re-validation failed")
		s.clearCredentials()
		s.update(func(st *State) {
			st.IsAuthenticated = false
			st.User = nil
			st.IsLoading = false
			st.Error = "Authentication failed"
		})
		return
	}

	s.update(func(st *State) {
		st.IsAuthenticated = true
		st.User = &user
		st.IsLoading = false
	})
}

// Login exchanges credentials for a session. On success both tokens
// are persisted with their own expiries and the returned user becomes
// the authenticated user. Failure records a user-facing error and
// leaves the session unauthenticated.
func (s *Store) Login(ctx context.Context, email, password string) {
	s.begin()

	var resp loginResponse
	err := s.api.Post(ctx, loginPath, map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Login failed")
		})
		return
	}

	if err := s.stores.Credentials.SetTTL(session.AccessTokenKey, resp.Access, session.AccessTokenTTL); err != nil {
		s.log.Error().Err(err).Msg("persisting access token failed")
	}
	if err := s.stores.Credentials.SetTTL(session.RefreshTokenKey, resp.Refresh, session.RefreshTokenTTL); err != nil {
		s.log.Error().Err(err).Msg("persisting refresh token failed")
	}

	user := resp.User
	s.update(func(st *State) {
		st.IsAuthenticated = true
		st.User = &user
		st.IsLoading = false
	})
	s.log.Info().Str("email", email).Msg("logged in")
}

// Register submits a registration request. Success does not
// authenticate: email verification happens out-of-band.
func (s *Store) Register(ctx context.Context, req RegisterRequest) {
	s.begin()
	if err := s.api.Post(ctx, registerPath, req, nil); err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Registration failed")
		})
		return
	}
	s.update(func(st *State) {
		st.IsLoading = false
	})
}

// JoinWaitlist submits a waitlist signup with the same loading and
// error contract as Register. No transition to authenticated.
func (s *Store) JoinWaitlist(ctx context.Context, req WaitlistRequest) {
	s.begin()
	if err := s.api.Post(ctx, waitlistPath, req, nil); err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Failed to join waitlist")
		})
		return
	}
	s.update(func(st *State) {
		st.IsLoading = false
	})
}

// VerifyEmail confirms the address behind an emailed verification
// token.
func (s *Store) VerifyEmail(ctx context.Context, token string) {
	s.begin()
	if err := s.api.Post(ctx, verifyEmailPath, map[string]string{"token": token}, nil); err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Email verification failed")
		})
		return
	}
	s.update(func(st *State) {
		st.IsLoading = false
	})
}

// Logout clears both credentials and resets the session state. Safe to
// call with no session present.
func (s *Store) Logout() {
	s.clearCredentials()
	s.update(func(st *State) {
		st.IsAuthenticated = false
		st.User = nil
		st.IsLoading = false
		st.Error = ""
	})
	s.log.Info().Msg("logged out")
}

func (s *Store) begin() {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})
}

// update applies fn to the state under the lock and persists the
// projection, so tab storage tracks every state change.
func (s *Store) update(fn func(*State)) {
	s.lock.Lock()
	fn(&s.state)
	p := projection{User: s.state.User, IsAuthenticated: s.state.IsAuthenticated}
	s.lock.Unlock()

	b, err := json.Marshal(p)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding session projection failed")
		return
	}
	if err := s.stores.Tab.Set(session.AuthStorageKey, string(b)); err != nil {
		s.log.Error().Err(err).Msg("persisting session projection failed")
	}
}

// hydrate restores the persisted projection, if any, as the initial
// state. The projection is display-only; InitAuth re-validates it.
func (s *Store) hydrate() {
	raw, ok := s.stores.Tab.Get(session.AuthStorageKey)
	if !ok {
		return
	}
	var p projection
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn().Err(err).Msg("discarding corrupt session projection")
		_ = s.stores.Tab.Remove(session.AuthStorageKey)
		return
	}
	s.lock.Lock()
	s.state.User = p.User
	s.state.IsAuthenticated = p.IsAuthenticated
	s.lock.Unlock()
}

func (s *Store) clearCredentials() {
	_ = s.stores.Credentials.Remove(session.AccessTokenKey)
	_ = s.stores.Credentials.Remove(session.RefreshTokenKey)
}
