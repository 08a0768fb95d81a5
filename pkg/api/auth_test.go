package api

import (
	"context"
	"testing"

	"github.com/harveywai/certwatch/pkg/apitest"
	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/pkg/errors"
)

func TestLoginStoresSessionInChosenTier(t *testing.T) {
	h := newHarness(t)

	r, err := h.auth.Login(context.Background(), apitest.AdminUser, apitest.AdminPassword, true)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if r.User.Username != apitest.AdminUser || r.User.RoleName != "admin" {
		t.Fatalf("unexpected user %+v", r.User)
	}
	if _, ok, _ := h.durable.Get(session.KeyToken); !ok {
		t.Fatalf("expected token in durable tier")
	}
	if h.ephemeral.Len() != 0 {
		t.Fatalf("expected ephemeral tier untouched")
	}
	if !h.store.IsAuthenticated() || !h.store.HasRole("admin") {
		t.Fatalf("expected authenticated admin session")
	}
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.Login(context.Background(), apitest.AdminUser, "wrong", false)
	if got := DetailOf(err, "Login failed"); got != "Incorrect username or password" {
		t.Fatalf("unexpected detail %q", got)
	}
	if h.store.Token() != "" {
		t.Fatalf("failed login must not store a token")
	}
	if len(h.redirects) != 0 {
		t.Fatalf("a failed login must not redirect")
	}

	before := h.srv.Requests()
	if _, err := h.auth.Login(context.Background(), "", "", false); err == nil {
		t.Fatalf("expected error for empty credentials")
	}
	if h.srv.Requests() != before {
		t.Fatalf("expected no request for empty credentials")
	}
}

func TestUnauthorizedClearsBothTiers(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, true)
	// A stale copy in the other tier must go too.
	h.ephemeral.Set(session.KeyToken, "stale")

	h.srv.Revoke(h.store.Token())
	_, err := h.client.Summary(context.Background())
	if !errors.Is(err, authfetch.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if h.durable.Len() != 0 || h.ephemeral.Len() != 0 {
		t.Fatalf("expected both tiers cleared, durable=%d ephemeral=%d", h.durable.Len(), h.ephemeral.Len())
	}
	if len(h.redirects) != 1 || h.redirects[0] != authfetch.ErrSessionExpired {
		t.Fatalf("expected one redirect, got %v", h.redirects)
	}
	if DetailOf(err, "x") != "Session expired" {
		t.Fatalf("unexpected detail %q", DetailOf(err, "x"))
	}
}

func TestFetchCurrentUser(t *testing.T) {
	h := newHarness(t)
	if _, err := h.auth.FetchCurrentUser(context.Background()); err != authfetch.ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	h.login(t, apitest.ViewerUser, apitest.ViewerPass, false)
	u, err := h.auth.FetchCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("fetch user failed: %v", err)
	}
	if u.FullName != "Read Only" || !h.store.HasPermission("domains:read") || h.store.HasPermission("domains:delete") {
		t.Fatalf("unexpected user %+v", u)
	}

	h.srv.Revoke(h.store.Token())
	if _, err := h.auth.FetchCurrentUser(context.Background()); err != authfetch.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if h.store.Token() != "" || h.store.User() != nil {
		t.Fatalf("expected session cleared")
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	token := h.store.Token()

	if err := h.auth.Logout(context.Background()); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if h.store.Token() != "" {
		t.Fatalf("expected token cleared")
	}
	// The backend revoked the token on logout.
	h.store.SetToken(token, false)
	if _, err := h.client.Summary(context.Background()); err != authfetch.ErrSessionExpired {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}

	// A second logout without a session is a no-op.
	if err := h.auth.Logout(context.Background()); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.ViewerUser, apitest.ViewerPass, false)
	ctx := context.Background()

	_, err := h.auth.ChangePassword(ctx, "nope", "secret99")
	if got := DetailOf(err, "Password change failed"); got != "Current password is incorrect" {
		t.Fatalf("unexpected detail %q", got)
	}

	msg, err := h.auth.ChangePassword(ctx, apitest.ViewerPass, "secret99")
	if err != nil || msg == "" {
		t.Fatalf("change password failed: %v", err)
	}
	h.auth.Logout(ctx)
	h.login(t, apitest.ViewerUser, "secret99", false)
}
