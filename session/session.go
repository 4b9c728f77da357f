// Package session defines the storage ports behind which the client
// keeps its persisted state: the cookie-scoped credential jar, the
// tab-scoped session projection, and the preference storage shared
// across browsing contexts.
package session

import "time"

// Keys under which the client persists its state. The credential keys
// live in cookie-scoped storage, the auth projection in tab-scoped
// storage, and the dark-mode flag in storage shared across contexts.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
	AuthStorageKey  = "auth-storage"
	DarkModeKey     = "darkMode"
)

// Default credential lifetimes. The access token is short-lived, the
// refresh token outlives it by a week.
const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Store is a named-value store with optional per-entry expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for name. Expired entries are reported as
	// absent.
	Get(name string) (string, bool)
	// Set stores a value without expiry.
	Set(name, value string) error
	// SetTTL stores a value that expires ttl from now. A non-positive
	// ttl behaves like Set.
	SetTTL(name, value string, ttl time.Duration) error
	// Remove deletes the value for name. Removing an absent name is
	// not an error.
	Remove(name string) error
}

// Watcher is implemented by stores whose backing data is shared across
// browsing contexts. Subscribers are notified of changes made through
// other handles over the same backing data; a handle never observes
// its own writes, mirroring the browser storage event.
type Watcher interface {
	// Subscribe registers fn and returns a cancel function releasing
	// the subscription. fn receives the changed name and its new value
	// (empty on removal).
	Subscribe(fn func(name, value string)) (cancel func())
}
