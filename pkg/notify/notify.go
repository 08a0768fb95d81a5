// Package notify shows user-facing alerts and confirmations. Messages are
// templates with {{key}} placeholders.
package notify

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Message templates for user actions.
const (
	DomainAdded        = "Domain added successfully!"
	BulkAdded          = "Success!\nAdded: {{added}}\nFailed: {{failed}}"
	DomainsDeleted     = "Successfully deleted {{count}} domains!"
	NotFoundHeader     = "Not found ({{count}}):"
	NotFoundMore       = "... and {{count}} more"
	ScanTriggered      = "Scan triggered successfully! Scanner will start within 5 seconds."
	TargetedScan       = "SSL scan triggered for {{count}} domain(s). Scanner will start within 5 seconds."
	SingleScan         = "SSL scan triggered for: {{domain}}. Scanner will start within 5 seconds."
	ConfirmDelete      = "Are you sure you want to delete this domain?"
	ConfirmBulkDelete  = "Are you sure you want to delete {{count}} domains?"
	ConfirmDeleteNames = "Are you sure you want to delete {{count}} domains?\n\nThis action cannot be undone!"
	ConfirmScanMany    = "Check SSL for {{count}} selected domain(s)?"
	ConfirmScanOne     = "Check SSL for this domain?"
)

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Format replaces {{key}} placeholders with values from data. Unknown keys
// are left in place.
func Format(template string, data map[string]string) string {
	if template == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		m := placeholder.FindStringSubmatch(match)
		if len(m) < 2 {
			return match
		}
		if v, ok := data[strings.TrimSpace(m[1])]; ok {
			return v
		}
		return match
	})
}

// Notifier delivers messages to the user.
type Notifier interface {
	// Alert shows msg. isError marks failures.
	Alert(msg string, isError bool)
	// Confirm asks a yes/no question.
	Confirm(msg string) bool
}

// Terminal prints alerts in color and reads confirmations from in.
type Terminal struct {
	out       io.Writer
	in        *bufio.Reader
	assumeYes bool
}

// NewTerminal builds a Terminal. With assumeYes every confirmation passes
// without reading input.
func NewTerminal(out io.Writer, in io.Reader, assumeYes bool) *Terminal {
	return &Terminal{out: out, in: bufio.NewReader(in), assumeYes: assumeYes}
}

func (t *Terminal) Alert(msg string, isError bool) {
	if isError {
		color.New(color.FgRed).Fprintln(t.out, msg)
		return
	}
	color.New(color.FgGreen).Fprintln(t.out, msg)
}

func (t *Terminal) Confirm(msg string) bool {
	color.New(color.FgYellow).Fprintf(t.out, "%s [y/N] ", msg)
	if t.assumeYes {
		fmt.Fprintln(t.out, "y")
		return true
	}
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(t.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// Entry is one recorded alert.
type Entry struct {
	Message string
	IsError bool
}

// Recorder keeps alerts for later display, such as flash messages on the
// next page render. Confirmations return Answer.
type Recorder struct {
	Answer bool

	mu        sync.Mutex
	entries   []Entry
	confirmed []string
}

func NewRecorder(answer bool) *Recorder {
	return &Recorder{Answer: answer}
}

func (r *Recorder) Alert(msg string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Message: msg, IsError: isError})
}

func (r *Recorder) Confirm(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, msg)
	return r.Answer
}

// Drain returns and forgets the recorded alerts.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// Confirmations lists the questions asked so far.
func (r *Recorder) Confirmations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.confirmed...)
}
