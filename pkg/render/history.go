package render

import (
	"fmt"
	"strings"

	"github.com/harveywai/certwatch/pkg/api"
)

// DefaultHistorySize is how many past scans are shown per domain.
const DefaultHistorySize = 5

// Dot is one status-history indicator.
type Dot struct {
	Class   string
	Tooltip string
}

// DotClass maps an SSL status onto valid, invalid or no-data.
func DotClass(status string) string {
	switch status {
	case api.StatusValid:
		return "valid"
	case api.StatusInvalid:
		return "invalid"
	}
	return "no-data"
}

// HistoryDots takes the newest limit entries of a newest-first history and
// returns them oldest to newest, so the latest scan sits on the right.
func HistoryDots(history []api.HistoryEntry, limit int) []Dot {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if len(history) > limit {
		history = history[:limit]
	}
	dots := make([]Dot, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		dots = append(dots, Dot{Class: DotClass(h.SSLStatus), Tooltip: dotTooltip(h)})
	}
	return dots
}

func dotTooltip(h api.HistoryEntry) string {
	status := h.SSLStatus
	if status == "" {
		status = "Unknown"
	}
	scanned := h.ScanTime
	if scanned == "" {
		scanned = "N/A"
	}
	tip := status + " - " + scanned
	if h.DaysUntilExpiry != nil {
		tip += fmt.Sprintf(" (%d days)", *h.DaysUntilExpiry)
	}
	return tip
}

// StatusDots renders the history indicators. Empty history is one no-data dot.
func StatusDots(history []api.HistoryEntry, limit int) string {
	dots := HistoryDots(history, limit)
	if len(dots) == 0 {
		return `<span class="ssl-dot no-data" title="No scan data"></span>`
	}
	var b strings.Builder
	for _, d := range dots {
		fmt.Fprintf(&b, `<span class="ssl-dot %s" title="%s"></span>`, d.Class, EscapeHTML(d.Tooltip))
	}
	return b.String()
}
