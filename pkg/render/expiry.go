package render

import (
	"fmt"
	"net/http"
	"strings"
)

// Severity classifies a certificate expiry for display.
type Severity string

const (
	SeverityNotApplicable Severity = "na"
	SeverityUnknown       Severity = "unknown"
	SeverityUrgent        Severity = "urgent"
	SeverityWarning       Severity = "warning"
	SeverityOK            Severity = "ok"
)

// Thresholds are the day counts below which a badge escalates. A
// WarningDays of zero (or not above UrgentDays) disables the warning tier.
type Thresholds struct {
	UrgentDays  int
	WarningDays int
}

// DefaultThresholds is the two-tier scheme: urgent below 7 days, ok otherwise.
func DefaultThresholds() Thresholds {
	return Thresholds{UrgentDays: 7}
}

// Expiry is a classified expiry date ready for display.
type Expiry struct {
	Severity Severity
	Date     string
	Days     *int
}

const noCertificate = "NO_SSL"

// ClassifyExpiry decides how an expiry date and day count are shown.
func ClassifyExpiry(date string, days *int, th Thresholds) Expiry {
	date = strings.TrimSpace(date)
	if date == "" || date == "-" || date == noCertificate {
		return Expiry{Severity: SeverityNotApplicable}
	}
	if days == nil {
		return Expiry{Severity: SeverityUnknown, Date: date}
	}

	e := Expiry{Date: NormalizeDate(date), Days: days}
	switch {
	case *days < th.UrgentDays:
		e.Severity = SeverityUrgent
	case th.WarningDays > th.UrgentDays && *days < th.WarningDays:
		e.Severity = SeverityWarning
	default:
		e.Severity = SeverityOK
	}
	return e
}

// NormalizeDate reduces verbose HTTP-date timestamps ("Mon, 02 Jan 2006
// 15:04:05 GMT") to a plain calendar date. Other inputs are returned as is.
func NormalizeDate(date string) string {
	if !strings.Contains(date, "GMT") {
		return date
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return date
	}
	return t.UTC().Format("2006-01-02")
}

var badgeClass = map[Severity]string{
	SeverityUrgent:  "badge-expired-soon",
	SeverityWarning: "badge-expiring-warning",
	SeverityOK:      "badge-expired-ok",
}

// HTML renders the expiry badge.
func (e Expiry) HTML() string {
	switch e.Severity {
	case SeverityNotApplicable:
		return `<span class="badge badge-secondary">N/A</span>`
	case SeverityUnknown:
		return fmt.Sprintf(`<span class="badge badge-secondary">%s</span>`, EscapeHTML(e.Date))
	}
	return fmt.Sprintf(`<span class="badge %s">%s - %d days</span>`, badgeClass[e.Severity], EscapeHTML(e.Date), *e.Days)
}
