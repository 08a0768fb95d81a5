// Package render turns domain data into HTML fragments for the dashboard.
// Every function is pure: no network access and no controller state.
package render

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML replaces & < > " ' with their entity equivalents.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
