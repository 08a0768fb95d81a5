package render

import (
	"fmt"
	"strings"
)

// WindowSize is the number of numbered page buttons.
const WindowSize = 5

// Window returns the contiguous range of numbered pages around current.
func Window(current, totalPages int) (start, end int) {
	if totalPages < 1 {
		totalPages = 1
	}
	start = max(1, current-WindowSize/2)
	end = min(totalPages, start+WindowSize-1)
	if end-start+1 < WindowSize {
		start = max(1, end-WindowSize+1)
	}
	return start, end
}

// PageItem is one pagination control.
type PageItem struct {
	Label    string
	Page     int
	Active   bool
	Disabled bool
	Ellipsis bool
}

// PageItems lists Previous, the optional "1 ...", the window, the optional
// "... N" and Next, in display order.
func PageItems(current, totalPages int) []PageItem {
	if totalPages < 1 {
		totalPages = 1
	}
	start, end := Window(current, totalPages)

	items := []PageItem{{Label: "Previous", Page: current - 1, Disabled: current <= 1}}
	if start > 1 {
		items = append(items, PageItem{Label: "1", Page: 1})
		if start > 2 {
			items = append(items, PageItem{Label: "...", Disabled: true, Ellipsis: true})
		}
	}
	for p := start; p <= end; p++ {
		items = append(items, PageItem{Label: fmt.Sprint(p), Page: p, Active: p == current})
	}
	if end < totalPages {
		if end < totalPages-1 {
			items = append(items, PageItem{Label: "...", Disabled: true, Ellipsis: true})
		}
		items = append(items, PageItem{Label: fmt.Sprint(totalPages), Page: totalPages})
	}
	items = append(items, PageItem{Label: "Next", Page: current + 1, Disabled: current >= totalPages})
	return items
}

// Pagination renders the controls. href builds the link for a page number.
func Pagination(current, totalPages int, href func(page int) string) string {
	var b strings.Builder
	for _, it := range PageItems(current, totalPages) {
		class := "page-item"
		if it.Active {
			class += " active"
		}
		if it.Disabled {
			class += " disabled"
		}
		if it.Ellipsis {
			fmt.Fprintf(&b, `<li class="%s"><span class="page-link">...</span></li>`, class)
			continue
		}
		fmt.Fprintf(&b, `<li class="%s"><a class="page-link" href="%s">%s</a></li>`, class, EscapeHTML(href(it.Page)), it.Label)
	}
	return b.String()
}

// InfoText is the "Showing S to E of T entries" line.
func InfoText(page, perPage, total int) string {
	start := 0
	if total > 0 {
		start = (page-1)*perPage + 1
	}
	end := min(page*perPage, total)
	return fmt.Sprintf("Showing %d to %d of %d entries", start, end, total)
}

// DomainCount is the "N domain(s)" label.
func DomainCount(total int) string {
	if total == 1 {
		return "1 domain"
	}
	return fmt.Sprintf("%d domains", total)
}
