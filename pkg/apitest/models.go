package apitest

import (
	"strings"
	"time"
)

// DomainRecord is a monitored domain with its latest scan denormalized.
type DomainRecord struct {
	ID              int        `gorm:"primaryKey" json:"id"`
	Domain          string     `gorm:"uniqueIndex;not null" json:"domain"`
	Notes           *string    `json:"notes"`
	SSLStatus       *string    `json:"ssl_status"`
	SSLExpiryDate   *string    `json:"ssl_expiry_date"`
	DaysUntilExpiry *int       `json:"days_until_expiry"`
	ScanTime        *time.Time `json:"scan_time"`
	ScanPending     bool       `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ScanRecord is one entry of a domain's append-only history.
type ScanRecord struct {
	ID              int       `gorm:"primaryKey"`
	DomainID        int       `gorm:"index;not null"`
	SSLStatus       string    `gorm:"not null"`
	SSLExpiryDate   string
	DaysUntilExpiry *int
	ScanTime        time.Time `gorm:"index"`
}

// UserRecord is a backend account.
type UserRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Username    string `gorm:"uniqueIndex;not null"`
	FullName    string
	Password    string
	RoleName    string
	Permissions string
	CreatedAt   time.Time
}

func (u UserRecord) permissionList() []string {
	if u.Permissions == "" {
		return []string{}
	}
	return strings.Split(u.Permissions, ",")
}

func (u UserRecord) toJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":          u.ID,
		"username":    u.Username,
		"full_name":   u.FullName,
		"role_name":   u.RoleName,
		"permissions": u.permissionList(),
	}
}

type historyJSON struct {
	SSLStatus       string `json:"ssl_status"`
	ScanTime        string `json:"scan_time"`
	DaysUntilExpiry *int   `json:"days_until_expiry"`
}

type domainJSON struct {
	ID              int           `json:"id"`
	Domain          string        `json:"domain"`
	Notes           *string       `json:"notes"`
	SSLStatus       *string       `json:"ssl_status"`
	SSLExpiryDate   *string       `json:"ssl_expiry_date"`
	DaysUntilExpiry *int          `json:"days_until_expiry"`
	ScanTime        *string       `json:"scan_time"`
	CreatedAt       string        `json:"created_at"`
	StatusHistory   []historyJSON `json:"status_history"`
}

const timestampLayout = "2006-01-02T15:04:05"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampLayout)
	return &s
}
