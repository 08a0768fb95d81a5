package database

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global session database handle for the application.
var DB *gorm.DB

var (
	initOnce sync.Once
	initErr  error
)

// StoredValue is one entry of the durable key-value tier.
type StoredValue struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Init opens the session database at path and runs migrations.
// It is safe to call Init multiple times; initialization will only happen once.
func Init(path string) error {
	initOnce.Do(func() {
		db, err := Open(path)
		if err != nil {
			initErr = err
			return
		}
		DB = db
		log.Debug().Str("path", path).Msg("session database initialized")
	})

	return initErr
}

// Open opens (creating if needed) a sqlite database and migrates the
// key-value table. ":memory:" and "file:" DSNs are passed through unchanged.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" && filepath.Dir(path) != "." && !isDSN(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, errors.Wrap(err, "create session directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open session database")
	}

	if err := db.AutoMigrate(&StoredValue{}); err != nil {
		return nil, errors.Wrap(err, "migrate session database")
	}
	return db, nil
}

func isDSN(path string) bool {
	return len(path) > 5 && path[:5] == "file:"
}
