package api

import (
	"context"
	"net/http"

	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/pkg/errors"
)

// LoginResult is the backend answer to a successful login.
type LoginResult struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// Auth runs the login lifecycle against the backend and keeps the session store in sync.
type Auth struct {
	client  *Client
	session *session.Store
}

func NewAuth(client *Client, store *session.Store) *Auth {
	return &Auth{client: client, session: store}
}

// bearerDoer attaches a fixed token without the redirect behaviour of authfetch.
type bearerDoer struct {
	token string
	next  Doer
}

func (d bearerDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+d.token)
	return d.next.Do(req)
}

// Login exchanges credentials for a token and stores token and user in the
// tier chosen by remember.
func (a *Auth) Login(ctx context.Context, username, password string, remember bool) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, &Error{StatusCode: 0, Detail: "Username and password are required"}
	}
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var r LoginResult
	if err := a.client.call(ctx, a.client.public, http.MethodPost, "/auth/login", nil, body, &r, "Login failed"); err != nil {
		return nil, err
	}
	if r.Token == "" {
		return nil, &Error{StatusCode: http.StatusOK, Detail: "Login failed"}
	}
	if err := a.session.SetToken(r.Token, remember); err != nil {
		return nil, err
	}
	if err := a.session.SetUserIn(r.User, remember); err != nil {
		return nil, err
	}
	return &r, nil
}

// Logout tells the backend best-effort and always clears the local session.
func (a *Auth) Logout(ctx context.Context) error {
	if token := a.session.Token(); token != "" {
		// The backend answer does not matter; the session ends either way.
		_ = a.client.call(ctx, bearerDoer{token, a.client.public}, http.MethodPost, "/auth/logout", nil, nil, nil, "Logout failed")
	}
	return a.session.Clear()
}

// FetchCurrentUser refreshes the cached user from the backend. A 401 clears
// the session and returns authfetch.ErrSessionExpired.
func (a *Auth) FetchCurrentUser(ctx context.Context) (*session.User, error) {
	token := a.session.Token()
	if token == "" {
		return nil, authfetch.ErrNotAuthenticated
	}

	var u session.User
	err := a.client.call(ctx, bearerDoer{token, a.client.public}, http.MethodGet, "/auth/me", nil, nil, &u, "Failed to fetch user info")
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		if cerr := a.session.Clear(); cerr != nil {
			return nil, cerr
		}
		return nil, authfetch.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if err := a.session.SetUser(u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChangePassword changes the current user's password and returns the backend message.
func (a *Auth) ChangePassword(ctx context.Context, current, next string) (string, error) {
	token := a.session.Token()
	if token == "" {
		return "", authfetch.ErrNotAuthenticated
	}
	body := struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{current, next}

	var r struct {
		Message string `json:"message"`
	}
	if err := a.client.call(ctx, bearerDoer{token, a.client.public}, http.MethodPost, "/auth/change-password", nil, body, &r, "Password change failed"); err != nil {
		return "", err
	}
	return r.Message, nil
}
