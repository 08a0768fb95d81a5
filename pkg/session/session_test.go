package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/harveywai/certwatch/pkg/auth"
	"github.com/harveywai/certwatch/pkg/database"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) (*Store, *MemoryKV, *MemoryKV) {
	t.Helper()
	durable, ephemeral := NewMemoryKV(), NewMemoryKV()
	return New(durable, ephemeral, zerolog.Nop()), durable, ephemeral
}

func TestSetTokenEphemeral(t *testing.T) {
	s, durable, ephemeral := newTestStore(t)

	if err := s.SetToken("abc", false); err != nil {
		t.Fatalf("failed to set token: %v", err)
	}
	if s.Token() != "abc" {
		t.Fatalf("expected token abc, got %q", s.Token())
	}
	if _, ok, _ := ephemeral.Get(KeyToken); !ok {
		t.Fatalf("expected token in ephemeral tier")
	}
	if _, ok, _ := durable.Get(KeyToken); ok {
		t.Fatalf("expected no token in durable tier")
	}
	if s.Remembered() {
		t.Fatalf("expected remember flag false")
	}
}

func TestSetTokenRemembered(t *testing.T) {
	s, durable, ephemeral := newTestStore(t)

	if err := s.SetToken("abc", true); err != nil {
		t.Fatalf("failed to set token: %v", err)
	}
	if err := s.SetUser(User{Username: "alice", RoleName: "admin"}); err != nil {
		t.Fatalf("failed to set user: %v", err)
	}
	if _, ok, _ := durable.Get(KeyToken); !ok {
		t.Fatalf("expected token in durable tier")
	}
	if _, ok, _ := durable.Get(KeyUser); !ok {
		t.Fatalf("expected user in durable tier")
	}
	if ephemeral.Len() != 0 {
		t.Fatalf("expected ephemeral tier untouched, has %d keys", ephemeral.Len())
	}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated")
	}
}

func TestClearRemovesBothTiers(t *testing.T) {
	s, durable, ephemeral := newTestStore(t)

	ephemeral.Set(KeyToken, "stale")
	ephemeral.Set(KeyUser, `{"username":"old"}`)
	if err := s.SetToken("abc", true); err != nil {
		t.Fatalf("failed to set token: %v", err)
	}
	s.SetUser(User{Username: "alice"})

	if err := s.Clear(); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("expected idempotent clear, got %v", err)
	}
	if durable.Len() != 0 || ephemeral.Len() != 0 {
		t.Fatalf("expected both tiers empty, got %d/%d", durable.Len(), ephemeral.Len())
	}
	if s.IsAuthenticated() || s.User() != nil {
		t.Fatalf("expected no session after clear")
	}
}

func TestUserHelpers(t *testing.T) {
	s, _, _ := newTestStore(t)

	if s.HasRole("admin") || s.HasPermission("domains:write") {
		t.Fatalf("expected no role or permission without a user")
	}

	s.SetToken("abc", false)
	s.SetUser(User{Username: "alice", FullName: "Alice A.", RoleName: "admin", Permissions: []string{"domains:write"}})

	u := s.User()
	if u == nil || u.DisplayName() != "Alice A." {
		t.Fatalf("unexpected user %+v", u)
	}
	if !s.HasRole("admin") || s.HasRole("user") {
		t.Fatalf("unexpected role check result")
	}
	if !s.HasPermission("domains:write") || s.HasPermission("users:write") {
		t.Fatalf("unexpected permission check result")
	}
}

func TestUnreadableUserIsAbsent(t *testing.T) {
	s, _, ephemeral := newTestStore(t)
	ephemeral.Set(KeyUser, "{not json")

	if s.User() != nil {
		t.Fatalf("expected corrupt user to read as nil")
	}
}

func TestExpiredJWTIsNotAuthenticated(t *testing.T) {
	s, _, _ := newTestStore(t)
	signer := auth.Signer{Secret: []byte("k"), TTL: time.Hour}
	token, err := signer.GenerateToken(1, "alice", "admin")
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	s.SetToken(token, false)

	if !s.IsAuthenticated() {
		t.Fatalf("expected fresh token to authenticate")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if s.IsAuthenticated() {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestRememberedSessionSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	durable, _ := database.NewKV(db)

	s := New(durable, NewMemoryKV(), zerolog.Nop())
	s.SetToken("abc", true)
	s.SetUser(User{Username: "alice"})

	restarted := New(durable, NewMemoryKV(), zerolog.Nop())
	if restarted.Token() != "abc" {
		t.Fatalf("expected remembered token after restart, got %q", restarted.Token())
	}
	if u := restarted.User(); u == nil || u.Username != "alice" {
		t.Fatalf("expected remembered user after restart, got %+v", u)
	}

	forgotten := New(durable, NewMemoryKV(), zerolog.Nop())
	forgotten.Clear()
	forgotten.SetToken("xyz", false)
	again := New(durable, NewMemoryKV(), zerolog.Nop())
	if again.IsAuthenticated() {
		t.Fatalf("expected ephemeral token to be gone after restart")
	}
}
