package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/harveywai/certwatch/pkg/session"
)

var rule = strings.Repeat("=", 60)

func printUser(u *session.User) {
	fmt.Printf("User: %s | Role: %s\n", u.DisplayName(), u.RoleName)
	if len(u.Permissions) > 0 {
		fmt.Printf("Permissions: %s\n", strings.Join(u.Permissions, ", "))
	}
}

// printSummary prints the dashboard counters with colored risk lines.
func printSummary(s *api.Summary) {
	c := render.DashboardCounters(s, time.Local)
	fmt.Println(rule)
	color.Cyan("Certificate Summary:")
	fmt.Printf("Total Domains: %s\n", c.Total)
	color.Green("Valid SSL: %s", c.Valid)
	if s != nil && s.ExpiredSoonCount > 0 {
		color.Yellow("Expiring Soon: %s", c.ExpiredSoon)
	} else {
		fmt.Printf("Expiring Soon: %s\n", c.ExpiredSoon)
	}
	if s != nil && s.FailedCount > 0 {
		color.Red("Failed: %s", c.Failed)
	} else {
		fmt.Printf("Failed: %s\n", c.Failed)
	}
	fmt.Printf("Last Scan: %s\n", c.LastScan)
	fmt.Println(rule)
}

func statusText(status string) string {
	switch status {
	case api.StatusValid:
		return color.GreenString("%-8s", status)
	case api.StatusInvalid:
		return color.RedString("%-8s", status)
	case "":
		return fmt.Sprintf("%-8s", "Unknown")
	}
	return fmt.Sprintf("%-8s", status)
}

func expiryText(e render.Expiry) string {
	var text string
	switch {
	case e.Severity == render.SeverityNotApplicable:
		text = "N/A"
	case e.Days == nil:
		text = e.Date
	default:
		text = fmt.Sprintf("%s (%d days)", e.Date, *e.Days)
	}
	switch e.Severity {
	case render.SeverityUrgent:
		return color.RedString("%s", text)
	case render.SeverityWarning:
		return color.YellowString("%s", text)
	case render.SeverityOK:
		return color.GreenString("%s", text)
	}
	return text
}

func dotsText(history []api.HistoryEntry, limit int) string {
	dots := render.HistoryDots(history, limit)
	if len(dots) == 0 {
		return color.HiBlackString("o")
	}
	var b strings.Builder
	for _, d := range dots {
		switch d.Class {
		case "valid":
			b.WriteString(color.GreenString("●"))
		case "invalid":
			b.WriteString(color.RedString("●"))
		default:
			b.WriteString(color.HiBlackString("o"))
		}
	}
	return b.String()
}

func pagesText(current, total int) string {
	var parts []string
	for _, it := range render.PageItems(current, total) {
		switch {
		case it.Ellipsis:
			parts = append(parts, "...")
		case it.Active:
			parts = append(parts, color.CyanString("[%s]", it.Label))
		case it.Disabled:
			continue
		default:
			parts = append(parts, it.Label)
		}
	}
	return strings.Join(parts, " ")
}

// printList prints one page of the domain table.
func printList(st listing.State, th render.Thresholds, historySize int) {
	if len(st.Domains) == 0 {
		fmt.Println("No domains found")
		return
	}
	fmt.Printf("%-6s %-40s %-8s %-24s %s\n", "ID", "DOMAIN", "SSL", "EXPIRES", "HISTORY")
	for _, d := range st.Domains {
		fmt.Printf("%-6d %-40s %s %s  %s\n",
			d.ID,
			d.Domain,
			statusText(d.SSLStatus),
			expiryText(render.ClassifyExpiry(d.SSLExpiryDate, d.DaysUntilExpiry, th)),
			dotsText(d.StatusHistory, historySize),
		)
	}
	fmt.Println()
	if st.Paged {
		fmt.Println(render.InfoText(st.Page, st.PerPage, st.Total))
		if st.TotalPages > 1 {
			fmt.Printf("Pages: %s\n", pagesText(st.Page, st.TotalPages))
		}
		return
	}
	fmt.Println(render.DomainCount(len(st.Domains)))
}

func printScanStatus(st *api.ScanStatus) {
	var status string
	switch st.Status {
	case "pending":
		status = color.YellowString("Pending")
	case "never_scanned":
		status = color.HiBlackString("Never scanned")
	default:
		status = color.GreenString("Completed")
	}
	last := "Never"
	if st.LastScan != nil {
		last = st.LastScan.Local().Format("02/01/2006, 15:04")
	}
	fmt.Printf("Domain: %s | Status: %s | Last Scan: %s | Scans: %d\n", st.DomainName, status, last, st.ScanCount)
}
