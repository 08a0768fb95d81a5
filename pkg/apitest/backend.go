// Package apitest runs an in-process certificate monitoring backend that
// speaks the same HTTP API as the production service. Tests and local demos
// point the client at it.
package apitest

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harveywai/certwatch/pkg/auth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Seeded accounts.
const (
	AdminUser     = "admin"
	AdminPassword = "admin123"
	ViewerUser    = "viewer"
	ViewerPass    = "viewer123"
)

// ExpiringSoonDays is the backend's "expiring soon" threshold.
const ExpiringSoonDays = 7

// Backend is the fake API. Its zero value is not usable; call New.
type Backend struct {
	db     *gorm.DB
	signer auth.Signer
	engine *gin.Engine

	requests int64
	mu       sync.Mutex
	byPath   map[string]int
	revoked  map[string]bool

	prober Prober
	logger zerolog.Logger
	scans  sync.WaitGroup
}

// New builds a Backend with a private in-memory database and seeded users.
func New() (*Backend, error) {
	dsn := fmt.Sprintf("file:apitest_%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open backend database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "open backend database")
	}
	// Shared-cache sqlite locks tables across connections; serialize access.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&DomainRecord{}, &ScanRecord{}, &UserRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate backend database")
	}

	b := &Backend{
		db:      db,
		signer:  auth.Signer{Secret: []byte(uuid.New().String()), TTL: time.Hour},
		byPath:  make(map[string]int),
		revoked: make(map[string]bool),
		logger:  zerolog.Nop(),
	}
	if err := b.seedUsers(); err != nil {
		return nil, err
	}
	b.engine = b.routes()
	return b, nil
}

func (b *Backend) seedUsers() error {
	users := []struct {
		name, full, pass, role, perms string
	}{
		{AdminUser, "Administrator", AdminPassword, "admin", "domains:read,domains:write,domains:delete,scan:trigger"},
		{ViewerUser, "Read Only", ViewerPass, "user", "domains:read"},
	}
	for _, u := range users {
		hashed, err := auth.HashPassword(u.pass)
		if err != nil {
			return errors.Wrap(err, "hash seed password")
		}
		rec := UserRecord{Username: u.name, FullName: u.full, Password: hashed, RoleName: u.role, Permissions: u.perms}
		if err := b.db.Create(&rec).Error; err != nil {
			return errors.Wrap(err, "seed user")
		}
	}
	return nil
}

// Handler exposes the API under /api.
func (b *Backend) Handler() http.Handler {
	return b.engine
}

// Requests returns how many HTTP requests reached the backend.
func (b *Backend) Requests() int {
	return int(atomic.LoadInt64(&b.requests))
}

// RequestsTo returns how many requests hit "METHOD /path" (route pattern).
func (b *Backend) RequestsTo(method, route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byPath[method+" "+route]
}

// Token issues a valid bearer token for a seeded user.
func (b *Backend) Token(username string) (string, error) {
	var u UserRecord
	if err := b.db.Where(&UserRecord{Username: username}).First(&u).Error; err != nil {
		return "", errors.Wrapf(err, "find user %s", username)
	}
	return b.signer.GenerateToken(u.ID, u.Username, u.RoleName)
}

// Revoke makes the backend answer 401 for token from now on.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

func (b *Backend) validate(token string) (*auth.Claims, error) {
	b.mu.Lock()
	revoked := b.revoked[token]
	b.mu.Unlock()
	if revoked {
		return nil, errors.New("token revoked")
	}
	return b.signer.ValidateToken(token)
}

func (b *Backend) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		atomic.AddInt64(&b.requests, 1)
		c.Next()
		b.mu.Lock()
		b.byPath[c.Request.Method+" "+c.FullPath()]++
		b.mu.Unlock()
	}
}

// Close waits for background scans and releases the database.
func (b *Backend) Close() error {
	b.WaitScans()
	sqlDB, err := b.db.DB()
	if err != nil {
		return errors.Wrap(err, "close backend database")
	}
	return sqlDB.Close()
}
