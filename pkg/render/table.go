package render

import (
	"fmt"
	"strings"

	"github.com/harveywai/certwatch/pkg/api"
)

const tableColumns = 6

// Options control row rendering.
type Options struct {
	Thresholds  Thresholds
	HistorySize int
}

// Row renders one domain as a table row.
func Row(d api.Domain, opts Options) string {
	scanned := d.ScanTime
	if scanned == "" {
		scanned = "N/A"
	}
	notes := ""
	if d.Notes != nil && *d.Notes != "" {
		notes = fmt.Sprintf(`<div class="domain-notes">%s</div>`, EscapeHTML(*d.Notes))
	}
	expiry := ClassifyExpiry(d.SSLExpiryDate, d.DaysUntilExpiry, opts.Thresholds)

	return fmt.Sprintf(`<tr>`+
		`<td><input type="checkbox" class="domain-checkbox" name="ids" value="%d"></td>`+
		`<td class="domain-cell">%s%s</td>`+
		`<td>%s</td>`+
		`<td>%s</td>`+
		`<td>%s</td>`+
		`<td>`+
		`<button class="btn-check-ssl" type="submit" formaction="/actions/scan/%d" title="Check SSL for this domain now" onclick="return confirm('Check SSL for this domain?')">Check SSL</button> `+
		`<button class="btn btn-sm btn-danger" type="submit" formaction="/actions/delete/%d" title="Delete" onclick="return confirm('Are you sure you want to delete this domain?')">Delete</button>`+
		`</td>`+
		`</tr>`,
		d.ID, EscapeHTML(d.Domain), notes,
		StatusDots(d.StatusHistory, opts.HistorySize),
		expiry.HTML(),
		EscapeHTML(scanned),
		d.ID, d.ID,
	)
}

// Rows renders the table body, or the empty row when there are no domains.
func Rows(domains []api.Domain, opts Options) string {
	if len(domains) == 0 {
		return EmptyRow()
	}
	var b strings.Builder
	for _, d := range domains {
		b.WriteString(Row(d, opts))
	}
	return b.String()
}

func EmptyRow() string {
	return fmt.Sprintf(`<tr><td colspan="%d" class="text-center text-muted">No domains found</td></tr>`, tableColumns)
}

// ErrorRow replaces the table body when a load fails.
func ErrorRow(msg string) string {
	if msg == "" {
		msg = "Error loading domains"
	}
	return fmt.Sprintf(`<tr><td colspan="%d" class="text-center text-danger">%s</td></tr>`, tableColumns, EscapeHTML(msg))
}

// SortIndicator is the icon class for a column header.
func SortIndicator(column, sortBy string, order api.SortOrder) string {
	if column != sortBy {
		return "sort"
	}
	if order == api.Desc {
		return "sort-down"
	}
	return "sort-up"
}
