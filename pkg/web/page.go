package web

import (
	"fmt"
	"strings"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/harveywai/certwatch/pkg/notify"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/harveywai/certwatch/pkg/session"
)

const styles = `
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f4f6f9; margin: 0; color: #212529; }
header { background: #1f2d3d; color: #fff; padding: 12px 24px; display: flex; justify-content: space-between; align-items: center; }
main { padding: 24px; }
.cards { display: flex; gap: 16px; margin-bottom: 24px; }
.card { flex: 1; background: #fff; border-radius: 6px; padding: 16px; text-decoration: none; color: inherit; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
.card .value { font-size: 28px; font-weight: 600; }
table { width: 100%; border-collapse: collapse; background: #fff; }
th, td { padding: 8px 10px; border-bottom: 1px solid #e9ecef; text-align: left; }
th a { color: inherit; text-decoration: none; }
.ssl-dot { display: inline-block; width: 12px; height: 12px; border-radius: 50%; margin-right: 3px; }
.ssl-dot.valid { background: #28a745; } .ssl-dot.invalid { background: #dc3545; } .ssl-dot.no-data { background: #adb5bd; }
.badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 13px; color: #fff; background: #6c757d; }
.badge-expired-soon, .badge-danger { background: #dc3545; } .badge-expiring-warning { background: #ffc107; color: #212529; }
.badge-expired-ok { background: #28a745; } .badge-primary { background: #007bff; }
.pagination { list-style: none; display: flex; gap: 4px; padding: 0; }
.page-item.active a { font-weight: 700; } .page-item.disabled a { pointer-events: none; color: #adb5bd; }
.flash { padding: 10px 14px; border-radius: 4px; margin-bottom: 12px; white-space: pre-line; background: #d4edda; }
.flash.error { background: #f8d7da; }
.text-danger { color: #dc3545; } .text-muted { color: #6c757d; } .text-center { text-align: center; }
`

func layout(title, body string, refresh bool) string {
	meta := ""
	if refresh {
		meta = `<meta http-equiv="refresh" content="30">`
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
%s
<title>%s</title>
<style>%s</style>
</head>
<body>
%s
</body>
</html>`, meta, render.EscapeHTML(title), styles, body)
}

func loginPage(notice, errMsg string) string {
	var b strings.Builder
	b.WriteString(`<main style="max-width:360px;margin:80px auto;">`)
	b.WriteString(`<h2>SSL Certificate Monitor</h2>`)
	if notice != "" {
		fmt.Fprintf(&b, `<div class="flash error">%s. Please log in again.</div>`, render.EscapeHTML(notice))
	}
	if errMsg != "" {
		fmt.Fprintf(&b, `<div class="flash error">%s</div>`, render.EscapeHTML(errMsg))
	}
	b.WriteString(`<form method="post" action="/login">
<p><input name="username" placeholder="Username" autofocus></p>
<p><input name="password" type="password" placeholder="Password"></p>
<p><label><input type="checkbox" name="remember" value="1"> Remember me</label></p>
<p><button type="submit">Login</button></p>
</form></main>`)
	return layout("Login - SSL Certificate Monitor", b.String(), false)
}

type pageData struct {
	State    listing.State
	Counters render.Counters
	User     *session.User
	Flashes  []notify.Entry
	Render   render.Options
}

var sortableColumns = []struct {
	key, label string
}{
	{"domain", "Domain"},
	{"ssl_status", "SSL Status"},
	{"ssl_expiry_date", "Expiry Date"},
	{"scan_time", "Last Scan"},
}

func dashboardPage(d pageData) string {
	var b strings.Builder

	fmt.Fprintf(&b, `<header><strong>SSL Certificate Monitor</strong><div>%s `+
		`<form method="post" action="/logout" style="display:inline"><button type="submit">Logout</button></form></div></header>`,
		render.UserBadge(d.User))
	b.WriteString(`<main>`)

	for _, f := range d.Flashes {
		class := "flash"
		if f.IsError {
			class += " error"
		}
		fmt.Fprintf(&b, `<div class="%s">%s</div>`, class, render.EscapeHTML(f.Message))
	}

	c := d.Counters
	fmt.Fprintf(&b, `<div class="cards">`+
		`<a class="card" href="/filter/all"><div>Total Domains</div><div class="value" id="totalDomains">%s</div></a>`+
		`<a class="card" href="/filter/valid"><div>SSL Valid</div><div class="value" id="sslValidCount">%s</div></a>`+
		`<a class="card" href="/filter/expired_soon"><div>Expiring Soon</div><div class="value" id="expiredSoonCount">%s</div></a>`+
		`<a class="card" href="/filter/invalid"><div>Failed</div><div class="value" id="failedCount">%s</div></a>`+
		`<div class="card"><div>Last Scan</div><div class="value" id="lastScan">%s</div></div>`+
		`</div>`,
		c.Total, c.Valid, c.ExpiredSoon, c.Failed, render.EscapeHTML(c.LastScan))

	b.WriteString(toolbar(d.State))
	b.WriteString(domainTable(d))
	b.WriteString(`</main>`)
	return layout("SSL Certificate Monitor", b.String(), true)
}

func selected(cond bool) string {
	if cond {
		return " selected"
	}
	return ""
}

func toolbar(st listing.State) string {
	var b strings.Builder
	f := st.Filters
	fmt.Fprintf(&b, `<form method="post" action="/filters" style="margin-bottom:12px">`+
		`<input name="search" placeholder="Search domains" value="%s"> `+
		`<select name="ssl_status"><option value="">All statuses</option>`+
		`<option value="VALID"%s>Valid</option><option value="INVALID"%s>Invalid</option></select> `+
		`<select name="expiry"><option value="">Any expiry</option><option value="expired_soon"%s>Expiring soon</option></select> `+
		`<button type="submit">Apply</button></form>`,
		render.EscapeHTML(f.Search),
		selected(f.SSLStatus == api.StatusValid), selected(f.SSLStatus == api.StatusInvalid),
		selected(f.ExpiredSoon))

	b.WriteString(`<div style="display:flex;gap:8px;margin-bottom:12px">`)
	b.WriteString(`<form method="post" action="/actions/scan"><button type="submit">Trigger Scan</button></form>`)
	b.WriteString(`<form method="post" action="/refresh"><button type="submit">Refresh</button></form>`)
	b.WriteString(`<a href="/export">Export CSV</a>`)
	b.WriteString(`</div>`)

	b.WriteString(`<details><summary>Add domains</summary>` +
		`<form method="post" action="/actions/add"><input name="domain" placeholder="example.com"> ` +
		`<input name="notes" placeholder="Notes (optional)"> <button type="submit">Add</button></form>` +
		`<form method="post" action="/actions/bulk-add"><textarea name="domains" rows="5" cols="40" placeholder="One domain per line"></textarea>` +
		`<br><button type="submit">Bulk Add</button></form></details>`)
	b.WriteString(`<details><summary>Delete by name</summary>` +
		`<form method="post" action="/actions/delete-names" onsubmit="return confirm('This action cannot be undone!')">` +
		`<textarea name="domains" rows="5" cols="40" placeholder="One domain per line"></textarea>` +
		`<br><button type="submit">Delete</button></form></details>`)
	return b.String()
}

func domainTable(d pageData) string {
	st := d.State
	var b strings.Builder

	if st.Paged {
		info := render.InfoText(st.Page, st.PerPage, st.Total)
		fmt.Fprintf(&b, `<p><span id="domainCount">%s</span> &middot; <span id="paginationInfo">%s</span></p>`,
			render.DomainCount(st.Total), info)
	}

	b.WriteString(`<form method="post" action="/actions/scan-selected">`)
	b.WriteString(`<div style="margin-bottom:8px">` +
		`<button type="submit" onclick="return confirm('Check SSL for the selected domain(s)?')">Check Selected</button> ` +
		`<button type="submit" formaction="/actions/bulk-delete" onclick="return confirm('Are you sure you want to delete the selected domains?')">Delete Selected</button></div>`)
	b.WriteString(`<table><thead><tr><th></th>`)
	for _, col := range sortableColumns {
		if col.key == "ssl_status" {
			fmt.Fprintf(&b, `<th><a href="/sort/%s">History <i class="%s"></i></a></th>`, col.key, render.SortIndicator(col.key, st.SortBy, st.SortOrder))
			continue
		}
		fmt.Fprintf(&b, `<th><a href="/sort/%s">%s <i class="%s"></i></a></th>`, col.key, col.label, render.SortIndicator(col.key, st.SortBy, st.SortOrder))
	}
	b.WriteString(`<th>Actions</th></tr></thead><tbody id="domainTableBody">`)

	switch {
	case st.Err != "":
		b.WriteString(render.ErrorRow(st.Err))
	default:
		b.WriteString(render.Rows(st.Domains, d.Render))
	}
	b.WriteString(`</tbody></table></form>`)

	if st.Paged {
		fmt.Fprintf(&b, `<ul class="pagination" id="paginationControls">%s</ul>`,
			render.Pagination(st.Page, st.TotalPages, func(p int) string { return fmt.Sprintf("/page/%d", p) }))
	}
	return b.String()
}
