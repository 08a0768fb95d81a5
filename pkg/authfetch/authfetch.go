// Package authfetch attaches the bearer token to outgoing requests and turns
// authorization failures into a cleared session plus a redirect signal.
package authfetch

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrNotAuthenticated is returned without any network call when no token is stored.
	ErrNotAuthenticated = errors.New("Not authenticated")
	// ErrSessionExpired is returned after the backend answered 401.
	ErrSessionExpired = errors.New("Session expired")
)

// TokenSource is the part of the session store the client needs.
type TokenSource interface {
	Token() string
	Clear() error
}

// UnauthorizedHandler is called with ErrNotAuthenticated or ErrSessionExpired
// whenever the caller should be sent to the login view.
type UnauthorizedHandler func(reason error)

// Client wraps an *http.Client with bearer authentication.
type Client struct {
	http           *http.Client
	session        TokenSource
	onUnauthorized UnauthorizedHandler
	logger         zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client reading tokens from session.
func New(session TokenSource, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req with the stored bearer token. Every status other than 401 is
// passed through untouched; the caller owns the body in that case.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token := c.session.Token()
	if token == "" {
		c.redirect(ErrNotAuthenticated)
		return nil, ErrNotAuthenticated
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.New().String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.session.Clear(); err != nil {
			c.logger.Error().Err(err).Msg("failed to clear session after 401")
		}
		c.logger.Info().Str("url", req.URL.Path).Msg("session expired, redirecting to login")
		c.redirect(ErrSessionExpired)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

func (c *Client) redirect(reason error) {
	if c.onUnauthorized != nil {
		c.onUnauthorized(reason)
	}
}
