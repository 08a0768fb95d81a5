package apitest

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Scan is a simulated probe outcome.
type Scan struct {
	Status     string
	ExpiryDate string
	Days       *int
	At         time.Time
}

// Days is a helper for building Scan values.
func Days(n int) *int {
	return &n
}

// AddDomain inserts name without public suffix validation and returns its id.
func (b *Backend) AddDomain(name string) (int, error) {
	rec := DomainRecord{Domain: name}
	if err := b.db.Create(&rec).Error; err != nil {
		return 0, errors.Wrapf(err, "add domain %s", name)
	}
	return rec.ID, nil
}

// SeedDomains inserts n domains named domain-001.example.com upward, so
// that alphabetical order equals insertion order.
func (b *Backend) SeedDomains(n int) ([]int, error) {
	recs := make([]DomainRecord, n)
	for i := range recs {
		recs[i].Domain = fmt.Sprintf("domain-%03d.example.com", i+1)
	}
	if n == 0 {
		return nil, nil
	}
	if err := b.db.CreateInBatches(&recs, 100).Error; err != nil {
		return nil, errors.Wrap(err, "seed domains")
	}
	ids := make([]int, n)
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}

// RecordScan appends a history entry and makes it the domain's latest state.
func (b *Backend) RecordScan(domainID int, s Scan) error {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	return b.db.Transaction(func(tx *gorm.DB) error {
		scan := ScanRecord{
			DomainID:        domainID,
			SSLStatus:       s.Status,
			SSLExpiryDate:   s.ExpiryDate,
			DaysUntilExpiry: s.Days,
			ScanTime:        s.At,
		}
		if err := tx.Create(&scan).Error; err != nil {
			return errors.Wrap(err, "record scan")
		}
		status, expiry, at := s.Status, s.ExpiryDate, s.At
		return tx.Model(&DomainRecord{ID: domainID}).Updates(map[string]interface{}{
			"ssl_status":        &status,
			"ssl_expiry_date":   &expiry,
			"days_until_expiry": s.Days,
			"scan_time":         &at,
			"scan_pending":      false,
		}).Error
	})
}

// DomainCount returns the number of stored domains.
func (b *Backend) DomainCount() int {
	var n int64
	b.db.Model(&DomainRecord{}).Count(&n)
	return int(n)
}

// SeedDemo fills the backend with a handful of domains in every state.
func (b *Backend) SeedDemo() error {
	now := time.Now()
	demo := []struct {
		name    string
		history []Scan
	}{
		{"example.com", []Scan{
			{Status: "VALID", ExpiryDate: now.AddDate(0, 3, 0).Format("2006-01-02"), Days: Days(90)},
		}},
		{"expiring.example.org", []Scan{
			{Status: "VALID", ExpiryDate: now.AddDate(0, 0, 9).Format("2006-01-02"), Days: Days(9)},
			{Status: "VALID", ExpiryDate: now.AddDate(0, 0, 4).Format("2006-01-02"), Days: Days(4)},
		}},
		{"legacy.example.net", []Scan{
			{Status: "VALID", ExpiryDate: now.AddDate(0, 1, 0).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"), Days: Days(30)},
			{Status: "INVALID", ExpiryDate: "NO_SSL"},
		}},
		{"flaky.example.io", []Scan{
			{Status: "INVALID", ExpiryDate: "-"},
			{Status: "VALID", ExpiryDate: now.AddDate(1, 0, 0).Format("2006-01-02"), Days: Days(365)},
			{Status: "INVALID", ExpiryDate: "-"},
			{Status: "VALID", ExpiryDate: now.AddDate(1, 0, 0).Format("2006-01-02"), Days: Days(364)},
		}},
		{"new.example.dev", nil},
	}
	for _, d := range demo {
		id, err := b.AddDomain(d.name)
		if err != nil {
			return err
		}
		for i, s := range d.history {
			s.At = now.Add(time.Duration(i-len(d.history)) * time.Hour)
			if err := b.RecordScan(id, s); err != nil {
				return err
			}
		}
	}
	return nil
}
