// Package session keeps the bearer token and cached user between runs.
//
// Two storage tiers back a Store: a durable one that survives restarts and an
// ephemeral one scoped to the running process. A persisted "remember" flag in
// the durable tier selects which tier holds the token and user.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/harveywai/certwatch/pkg/auth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Storage keys.
const (
	KeyToken    = "ssl_monitor_token"
	KeyUser     = "ssl_monitor_user"
	KeyRemember = "ssl_monitor_remember"
)

// KV is one storage tier.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// User is the cached identity returned by the backend on login and /auth/me.
type User struct {
	ID          int      `json:"id,omitempty"`
	Username    string   `json:"username"`
	FullName    string   `json:"full_name,omitempty"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayName prefers the full name over the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Store is the session store. Reads that fail are logged and treated as absent.
type Store struct {
	durable   KV
	ephemeral KV
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds a Store over the two tiers.
func New(durable, ephemeral KV, logger zerolog.Logger) *Store {
	return &Store{
		durable:   durable,
		ephemeral: ephemeral,
		logger:    logger,
		now:       time.Now,
	}
}

// Remembered reports whether the durable tier is selected.
func (s *Store) Remembered() bool {
	v, ok := s.read(s.durable, KeyRemember)
	return ok && v == "true"
}

func (s *Store) tier() KV {
	if s.Remembered() {
		return s.durable
	}
	return s.ephemeral
}

func (s *Store) tierFor(remember bool) KV {
	if remember {
		return s.durable
	}
	return s.ephemeral
}

// Token returns the stored bearer token or "".
func (s *Store) Token() string {
	token, _ := s.read(s.tier(), KeyToken)
	return token
}

// SetToken stores token in the tier chosen by remember and persists the choice.
func (s *Store) SetToken(token string, remember bool) error {
	if err := s.tierFor(remember).Set(KeyToken, token); err != nil {
		return errors.Wrap(err, "store token")
	}
	flag := "false"
	if remember {
		flag = "true"
	}
	return errors.Wrap(s.durable.Set(KeyRemember, flag), "store remember flag")
}

// User returns the cached user, or nil when absent or unreadable.
func (s *Store) User() *User {
	raw, ok := s.read(s.tier(), KeyUser)
	if !ok || raw == "" {
		return nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable cached user")
		return nil
	}
	return &u
}

// SetUser caches user in the currently selected tier.
func (s *Store) SetUser(user User) error {
	return s.setUser(s.tier(), user)
}

// SetUserIn caches user in the tier chosen by remember.
func (s *Store) SetUserIn(user User, remember bool) error {
	return s.setUser(s.tierFor(remember), user)
}

func (s *Store) setUser(kv KV, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "encode user")
	}
	return errors.Wrap(kv.Set(KeyUser, string(raw)), "store user")
}

// Clear removes token, user and the remember flag from both tiers. It is idempotent.
func (s *Store) Clear() error {
	var firstErr error
	for _, step := range []struct {
		kv  KV
		key string
	}{
		{s.durable, KeyToken},
		{s.durable, KeyUser},
		{s.durable, KeyRemember},
		{s.ephemeral, KeyToken},
		{s.ephemeral, KeyUser},
	} {
		if err := step.kv.Delete(step.key); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "clear session")
		}
	}
	return firstErr
}

// IsAuthenticated reports whether a usable token is present. JWT-shaped
// tokens whose exp has passed count as absent.
func (s *Store) IsAuthenticated() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	if exp, ok := auth.ExpiresAt(token); ok && !exp.After(s.now()) {
		return false
	}
	return true
}

// HasPermission reports whether the cached user carries permission.
func (s *Store) HasPermission(permission string) bool {
	u := s.User()
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasRole reports whether the cached user has the given role name.
func (s *Store) HasRole(role string) bool {
	u := s.User()
	return u != nil && u.RoleName == role
}

func (s *Store) read(kv KV, key string) (string, bool) {
	v, ok, err := kv.Get(key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("session storage read failed")
		return "", false
	}
	return v, ok
}

// MemoryKV is the ephemeral tier: it lives as long as the process.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len reports how many keys are stored.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
