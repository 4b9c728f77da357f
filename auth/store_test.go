package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/manimforge/go-manim-client/auth"
	"github.com/manimforge/go-manim-client/session"
	"github.com/manimforge/go-manim-client/session/memstore"
	"github.com/manimforge/go-manim-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "correct-horse"
	accessToken  = "a1"
	refreshTok   = "r1"
)

var testUser = auth.User{
	ID:            1,
	Email:         testEmail,
	FirstName:     "Jane",
	LastName:      "Doe",
	EmailVerified: true,
	IsApproved:    true,
}

// testFixture holds the store under test plus the fake backend and the
// storage scopes it writes to.
type testFixture struct {
	store        *auth.Store
	creds        *memstore.Handle
	tab          *memstore.Handle
	profileCalls *int32
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	var profileCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Email != testEmail || body.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		writeJSON(t, w, map[string]any{
			"access":  accessToken,
			"refresh": refreshTok,
			"user":    testUser,
		})
	})
	mux.HandleFunc("/api/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&profileCalls, 1)
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, testUser)
	})
	mux.HandleFunc("/api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Refresh string `json:"refresh"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Refresh != refreshTok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"refresh denied"}`))
			return
		}
		writeJSON(t, w, map[string]string{"access": accessToken})
	})
	mux.HandleFunc("/api/auth/register/", func(w http.ResponseWriter, r *http.Request) {
		var body auth.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.InvitationToken == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invitation token required"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/auth/waiting-list/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/auth/verify-email/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Token != "good-token" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid verification token"}`))
			return
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	creds := memstore.New()
	tab := memstore.New()

	api, err := transport.New(server.URL, creds)
	require.NoError(t, err)

	store, err := auth.NewStore(api, auth.Stores{Credentials: creds, Tab: tab})
	require.NoError(t, err)

	return &testFixture{
		store:        store,
		creds:        creds,
		tab:          tab,
		profileCalls: &profileCalls,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)

	f.store.Login(context.Background(), testEmail, testPassword)

	st := f.store.State()
	assert.True(t, st.IsAuthenticated)
	require.NotNil(t, st.User)
	assert.Equal(t, 1, st.User.ID)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Error)

	access, ok := f.creds.Get(session.AccessTokenKey)
	require.True(t, ok)
	assert.Equal(t, accessToken, access)
	refresh, ok := f.creds.Get(session.RefreshTokenKey)
	require.True(t, ok)
	assert.Equal(t, refreshTok, refresh)
}

func TestLoginFailureRecordsBackendError(t *testing.T) {
	f := setupTestFixture(t)

	f.store.Login(context.Background(), testEmail, "wrong")

	st := f.store.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Equal(t, "Invalid credentials", st.Error)

	_, ok := f.creds.Get(session.AccessTokenKey)
	assert.False(t, ok, "failed login must not persist credentials")
}

func TestInitAuthWithoutTokenSkipsNetwork(t *testing.T) {
	f := setupTestFixture(t)

	f.store.InitAuth(context.Background())

	st := f.store.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.EqualValues(t, 0, atomic.LoadInt32(f.profileCalls))
}

func TestInitAuthValidatesSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.creds.SetTTL(session.AccessTokenKey, accessToken, session.AccessTokenTTL))

	f.store.InitAuth(context.Background())

	st := f.store.State()
	assert.True(t, st.IsAuthenticated)
	require.NotNil(t, st.User)
	assert.Equal(t, testEmail, st.User.Email)
	assert.EqualValues(t, 1, atomic.LoadInt32(f.profileCalls))
}

func TestInitAuthIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.creds.SetTTL(session.AccessTokenKey, accessToken, session.AccessTokenTTL))

	f.store.InitAuth(context.Background())
	f.store.InitAuth(context.Background())

	st := f.store.State()
	assert.True(t, st.IsAuthenticated)
	assert.EqualValues(t, 2, atomic.LoadInt32(f.profileCalls))
}

func TestInitAuthFailureClearsCredentials(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.creds.Set(session.AccessTokenKey, "expired"))
	require.NoError(t, f.creds.Set(session.RefreshTokenKey, "bogus"))

	f.store.InitAuth(context.Background())

	st := f.store.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Equal(t, "Authentication failed", st.Error)

	_, ok := f.creds.Get(session.AccessTokenKey)
	assert.False(t, ok)
	_, ok = f.creds.Get(session.RefreshTokenKey)
	assert.False(t, ok)
}

func TestRegisterSuccessDoesNotAuthenticate(t *testing.T) {
	f := setupTestFixture(t)

	f.store.Register(context.Background(), auth.RegisterRequest{
		Email:           testEmail,
		Password:        testPassword,
		Password2:       testPassword,
		FirstName:       "Jane",
		LastName:        "Doe",
		InvitationToken: "invite-1",
	})

	st := f.store.State()
	assert.False(t, st.IsAuthenticated, "registration requires email verification first")
	assert.Empty(t, st.Error)
	assert.False(t, st.IsLoading)
}

func TestRegisterFailurePopulatesError(t *testing.T) {
	f := setupTestFixture(t)

	f.store.Register(context.Background(), auth.RegisterRequest{Email: testEmail})

	st := f.store.State()
	assert.Equal(t, "invitation token required", st.Error)
	assert.False(t, st.IsAuthenticated)
}

func TestJoinWaitlist(t *testing.T) {
	f := setupTestFixture(t)

	f.store.JoinWaitlist(context.Background(), auth.WaitlistRequest{
		Email: testEmail,
		Name:  "Jane Doe",
	})

	st := f.store.State()
	assert.Empty(t, st.Error)
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
}

func TestVerifyEmail(t *testing.T) {
	f := setupTestFixture(t)

	f.store.VerifyEmail(context.Background(), "good-token")
	assert.Empty(t, f.store.State().Error)

	f.store.VerifyEmail(context.Background(), "bad-token")
	assert.Equal(t, "invalid verification token", f.store.State().Error)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	initial := f.store.State()
	f.store.Logout()

	assert.Equal(t, initial, f.store.State(), "logout with no session leaves the initial state")
}

func TestLogoutClearsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Login(context.Background(), testEmail, testPassword)
	require.True(t, f.store.State().IsAuthenticated)

	f.store.Logout()

	st := f.store.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Empty(t, st.Error)

	_, ok := f.creds.Get(session.AccessTokenKey)
	assert.False(t, ok)
	_, ok = f.creds.Get(session.RefreshTokenKey)
	assert.False(t, ok)
}

func TestProjectionSurvivesReload(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Login(context.Background(), testEmail, testPassword)

	// A reload within the same tab constructs a fresh store over the
	// same tab-scoped storage; the shell shows a logged-in user before
	// InitAuth re-validates anything.
	api, err := transport.New("http://localhost:0", f.creds)
	require.NoError(t, err)
	reloaded, err := auth.NewStore(api, auth.Stores{Credentials: f.creds, Tab: f.tab})
	require.NoError(t, err)

	st := reloaded.State()
	assert.True(t, st.IsAuthenticated)
	require.NotNil(t, st.User)
	assert.Equal(t, 1, st.User.ID)
}

func TestTransientFailureLeavesSessionIntact(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Login(context.Background(), testEmail, testPassword)

	f.store.VerifyEmail(context.Background(), "bad-token")

	st := f.store.State()
	assert.True(t, st.IsAuthenticated, "a validation failure must not log the user out")
	assert.Equal(t, "invalid verification token", st.Error)
}
