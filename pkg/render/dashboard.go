package render

import (
	"fmt"
	"strconv"
	"time"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/session"
)

// Counters are the dashboard card values as display strings.
type Counters struct {
	Total       string
	Valid       string
	ExpiredSoon string
	Failed      string
	LastScan    string
}

// DashboardCounters formats a summary. A nil summary renders zeros.
func DashboardCounters(s *api.Summary, loc *time.Location) Counters {
	if s == nil {
		s = &api.Summary{}
	}
	return Counters{
		Total:       strconv.Itoa(s.TotalDomains),
		Valid:       strconv.Itoa(s.SSLValidCount),
		ExpiredSoon: strconv.Itoa(s.ExpiredSoonCount),
		Failed:      strconv.Itoa(s.FailedCount),
		LastScan:    LastScan(s.LastScanTime, loc),
	}
}

// LastScan formats the last scan as DD/MM/YYYY, HH:MM, or "Never".
func LastScan(t *api.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return "Never"
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("02/01/2006, 15:04")
}

var roleBadge = map[string]string{
	"admin": "badge-danger",
	"user":  "badge-primary",
}

// UserBadge shows the display name and role of the signed-in user.
func UserBadge(u *session.User) string {
	if u == nil {
		return ""
	}
	class, ok := roleBadge[u.RoleName]
	if !ok {
		class = "badge-secondary"
	}
	return fmt.Sprintf(`<span class="user-name">%s</span> <span class="badge %s">%s</span>`,
		EscapeHTML(u.DisplayName()), class, EscapeHTML(u.RoleName))
}
