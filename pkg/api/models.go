package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SSL statuses reported by the backend.
const (
	StatusValid   = "VALID"
	StatusInvalid = "INVALID"
)

// NoCertificate is the expiry sentinel the backend uses for hosts without TLS.
const NoCertificate = "NO_SSL"

// HistoryEntry is one past scan of a domain.
type HistoryEntry struct {
	SSLStatus       string `json:"ssl_status"`
	ScanTime        string `json:"scan_time"`
	DaysUntilExpiry *int   `json:"days_until_expiry"`
	HTTPSStatus     string `json:"https_status,omitempty"`
}

// Domain is a monitored hostname with its latest and recent scan results.
type Domain struct {
	ID              int            `json:"id"`
	Domain          string         `json:"domain"`
	Notes           *string        `json:"notes,omitempty"`
	ScanTime        string         `json:"scan_time"`
	SSLStatus       string         `json:"ssl_status"`
	SSLExpiryDate   string         `json:"ssl_expiry_date"`
	DaysUntilExpiry *int           `json:"days_until_expiry"`
	HTTPSStatus     string         `json:"https_status,omitempty"`
	RedirectURL     string         `json:"redirect_url,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	StatusHistory   []HistoryEntry `json:"status_history"`
}

// DomainPage is one page of the domain list. Paged is false when the backend
// answered with a bare list instead of the paging envelope.
type DomainPage struct {
	Domains    []Domain
	Page       int
	TotalPages int
	Total      int
	Paged      bool
}

type pageEnvelope struct {
	Domains    *[]Domain `json:"domains"`
	Page       *int      `json:"page"`
	TotalPages *int      `json:"total_pages"`
	Total      *int      `json:"total"`
}

// UnmarshalJSON accepts either the paging envelope or a bare array.
// Missing metadata falls back to page 1 of 1 with zero total.
func (p *DomainPage) UnmarshalJSON(data []byte) error {
	*p = DomainPage{Page: 1, TotalPages: 1}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &p.Domains)
	}

	var env pageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Domains == nil {
		return nil
	}
	p.Paged = true
	p.Domains = *env.Domains
	if env.Page != nil && *env.Page > 0 {
		p.Page = *env.Page
	}
	if env.TotalPages != nil && *env.TotalPages > 0 {
		p.TotalPages = *env.TotalPages
	}
	if env.Total != nil && *env.Total > 0 {
		p.Total = *env.Total
	}
	return nil
}

// SortOrder is the list direction.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Flip returns the opposite direction.
func (o SortOrder) Flip() SortOrder {
	if o == Asc {
		return Desc
	}
	return Asc
}

// Filters are AND-combined list predicates. Zero values mean "any".
type Filters struct {
	SSLStatus   string
	ExpiredSoon bool
	Search      string
}

// ListQuery is the full list request state.
type ListQuery struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder SortOrder
	Filters   Filters
}

// Values serializes the query. Empty filters are omitted.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	if q.SortBy != "" {
		v.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sort_order", string(q.SortOrder))
	}
	if q.Filters.SSLStatus != "" {
		v.Set("ssl_status", q.Filters.SSLStatus)
	}
	if q.Filters.ExpiredSoon {
		v.Set("expired_soon", "true")
	}
	if s := strings.TrimSpace(q.Filters.Search); s != "" {
		v.Set("search", s)
	}
	return v
}

// Summary holds the dashboard counters.
type Summary struct {
	TotalDomains     int   `json:"total_domains"`
	SSLValidCount    int   `json:"ssl_valid_count"`
	ExpiredSoonCount int   `json:"expired_soon_count"`
	FailedCount      int   `json:"failed_count"`
	LastScanTime     *Time `json:"last_scan_time"`
}

type BulkFailure struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

type BulkCreateResult struct {
	TotalAdded  int           `json:"total_added"`
	TotalFailed int           `json:"total_failed"`
	Added       []Domain      `json:"added,omitempty"`
	Failed      []BulkFailure `json:"failed,omitempty"`
}

type BulkDeleteResult struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}

type DeleteByNameResult struct {
	Message         string   `json:"message,omitempty"`
	DeletedCount    int      `json:"deleted_count"`
	NotFoundDomains []string `json:"not_found_domains"`
}

type ScanAck struct {
	Message string `json:"message"`
}

type TargetedScan struct {
	Message     string   `json:"message"`
	DomainCount int      `json:"domain_count"`
	Domains     []string `json:"domains"`
}

type ScanStatus struct {
	DomainID   int    `json:"domain_id"`
	DomainName string `json:"domain_name"`
	Status     string `json:"status"`
	LastScan   *Time  `json:"last_scan"`
	ScanCount  int    `json:"scan_count"`
}

// Time decodes the timestamp shapes the backend emits, with or without zone.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339, Value: s}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
