// Package transport wraps outbound requests to the animation backend.
// It attaches the bearer credential, detects session expiry, and
// performs one transparent refresh-and-retry per request. It is the
// only component permitted to mutate persisted credentials or trigger
// the auth-failure navigation.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	errs "github.com/manimforge/go-manim-client/internal/errors"
	"github.com/manimforge/go-manim-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/api/auth/token/refresh/"

// Client issues JSON requests against the backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	creds         session.Store
	accessKey     string
	refreshKey    string
	accessTTL     time.Duration
	onAuthFailure func()
	newRequestID  func() string
	nowTime       func() time.Time // nowTime function (injectable for testing)
	refreshes     singleflight.Group
	log           zerolog.Logger
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The zero-value
// default carries no timeout; callers wanting one supply their own.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for request and refresh logging.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithAuthFailureHandler sets the hook invoked after a failed refresh,
// once both credentials have been cleared. A browser embedding would
// navigate to the login page here.
func WithAuthFailureHandler(fn func()) Option {
	return func(c *Client) {
		c.onAuthFailure = fn
	}
}

// WithCredentialKeys overrides the storage keys for the two credentials.
func WithCredentialKeys(accessKey, refreshKey string) Option {
	return func(c *Client) {
		c.accessKey = accessKey
		c.refreshKey = refreshKey
	}
}

// WithAccessTokenTTL overrides the fallback lifetime used when a
// refreshed access token carries no readable expiry.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.accessTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a Client for the backend at baseURL, persisting
// credentials in creds.
func New(baseURL string, creds session.Store, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[transport.New] baseURL is required")
	}
	if creds == nil {
		return nil, errors.New("[transport.New] credential store is required")
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		creds:        creds,
		accessKey:    session.AccessTokenKey,
		refreshKey:   session.RefreshTokenKey,
		accessTTL:    session.AccessTokenTTL,
		newRequestID: uuid.NewString,
		nowTime:      time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body and decodes the response
// into out. Either may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do issues a request with the current access credential attached. On
// a 401 it performs exactly one refresh-and-retry; every other non-2xx
// response is returned unchanged as an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, body, out, 0)
}

// do carries the retry attempt explicitly: attempt 0 is the original
// request, attempt 1 the single post-refresh retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any, attempt int) error {
	status, respBody, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && attempt == 0 {
		if refreshErr := c.refreshAccess(ctx); refreshErr != nil {
			c.forceLogout(refreshErr)
			if errs.Is(refreshErr, errs.ErrNoRefreshToken) {
				return errors.Wrap(errs.ErrAuthenticationFailed, "no refresh token available")
			}
			// Propagate the original authorization failure.
			return newAPIError(status, respBody)
		}
		return c.do(ctx, method, path, body, out, attempt+1)
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return newAPIError(status, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "[Client.Do] decode %s %s response", method, path)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrap(err, "[Client.send] encode request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.send] new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.newRequestID())
	if token, ok := c.creds.Get(c.accessKey); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "[Client.send] %s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.send] read response body")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("request complete")

	return resp.StatusCode, respBody, nil
}

// refreshAccess exchanges the refresh credential for a new access
// credential and persists it. Concurrent authorization failures share
// a single in-flight refresh.
func (c *Client) refreshAccess(ctx context.Context) error {
	refreshToken, ok := c.creds.Get(c.refreshKey)
	if !ok {
		return errs.ErrNoRefreshToken
	}

	_, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		access, err := c.requestRefresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if err := c.creds.SetTTL(c.accessKey, access, c.accessLifetime(access)); err != nil {
			return nil, errors.Wrap(err, "[Client.refreshAccess] persist access token")
		}
		c.log.Debug().Msg("access token refreshed")
		return access, nil
	})
	return err
}

func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", errors.Wrap(err, "[Client.requestRefresh] encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "[Client.requestRefresh] new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(errs.ErrRefreshFailed, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errs.ErrRefreshFailed, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(errs.ErrRefreshFailed, "status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(errs.ErrRefreshFailed, err.Error())
	}
	if result.Access == "" {
		return "", errors.Wrap(errs.ErrRefreshFailed, "empty access token in response")
	}
	return result.Access, nil
}

// accessLifetime prefers the token's own exp claim over the configured
// fallback. The claim is read unverified; this client never validates
// token signatures.
func (c *Client) accessLifetime(token string) time.Duration {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return c.accessTTL
	}
	if claims.ExpiresAt == nil {
		return c.accessTTL
	}
	if remaining := claims.ExpiresAt.Time.Sub(c.nowTime()); remaining > 0 {
		return remaining
	}
	return c.accessTTL
}

// forceLogout clears both credentials and hands control to the auth
// failure hook, the client-side equivalent of the hard redirect to the
// login page.
func (c *Client) forceLogout(cause error) {
	c.log.Warn().Err(cause).Msg("token refresh failed, clearing credentials")
	_ = c.creds.Remove(c.accessKey)
	_ = c.creds.Remove(c.refreshKey)
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}
