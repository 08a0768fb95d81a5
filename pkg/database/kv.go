package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDatabaseNotInitialized is returned when a KV is built without a database handle.
	ErrDatabaseNotInitialized = errors.New("database not initialized")
)

// KV is the durable storage tier backed by the StoredValue table.
type KV struct {
	db *gorm.DB
}

// NewKV wraps db. A nil db falls back to the global handle set by Init.
func NewKV(db *gorm.DB) (*KV, error) {
	if db == nil {
		db = DB
	}
	if db == nil {
		return nil, ErrDatabaseNotInitialized
	}
	return &KV{db: db}, nil
}

func (s *KV) Get(key string) (string, bool, error) {
	var v StoredValue
	err := s.db.Where(&StoredValue{Key: key}).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", key)
	}
	return v.Value, true, nil
}

func (s *KV) Set(key, value string) error {
	v := StoredValue{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&v).Error
	return errors.Wrapf(err, "write %s", key)
}

func (s *KV) Delete(key string) error {
	err := s.db.Delete(&StoredValue{Key: key}).Error
	return errors.Wrapf(err, "delete %s", key)
}
