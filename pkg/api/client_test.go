package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/harveywai/certwatch/pkg/apitest"
	"github.com/harveywai/certwatch/pkg/apitest/testserver"
	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type harness struct {
	srv       *testserver.Server
	store     *session.Store
	durable   *session.MemoryKV
	ephemeral *session.MemoryKV
	client    *Client
	auth      *Auth
	redirects []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		srv:       testserver.New(t),
		durable:   session.NewMemoryKV(),
		ephemeral: session.NewMemoryKV(),
	}
	h.store = session.New(h.durable, h.ephemeral, zerolog.Nop())
	fetch := authfetch.New(h.store, authfetch.WithUnauthorizedHandler(func(reason error) {
		h.redirects = append(h.redirects, reason)
	}))
	h.client = NewClient(h.srv.BaseURL(), fetch, nil)
	h.auth = NewAuth(h.client, h.store)
	return h
}

func (h *harness) login(t *testing.T, user, pass string, remember bool) {
	t.Helper()
	if _, err := h.auth.Login(context.Background(), user, pass, remember); err != nil {
		t.Fatalf("login as %s failed: %v", user, err)
	}
}

func TestListDomainsPaging(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	if _, err := h.srv.SeedDomains(250); err != nil {
		t.Fatalf("failed to seed domains: %v", err)
	}

	page, err := h.client.ListDomains(context.Background(), ListQuery{
		Page: 2, PerPage: 100, SortBy: "domain", SortOrder: Asc,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !page.Paged {
		t.Fatalf("expected paging envelope")
	}
	if page.TotalPages != 3 || page.Total != 250 || page.Page != 2 {
		t.Fatalf("unexpected paging metadata: page=%d total_pages=%d total=%d", page.Page, page.TotalPages, page.Total)
	}
	if len(page.Domains) != 100 {
		t.Fatalf("expected 100 domains, got %d", len(page.Domains))
	}
	if first := page.Domains[0].Domain; first != "domain-101.example.com" {
		t.Errorf("expected first domain-101.example.com, got %s", first)
	}
	if last := page.Domains[99].Domain; last != "domain-200.example.com" {
		t.Errorf("expected last domain-200.example.com, got %s", last)
	}
}

func TestListDomainsFiltersAndHistory(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ids, err := h.srv.SeedDomains(3)
	if err != nil {
		t.Fatalf("failed to seed domains: %v", err)
	}
	for i := 0; i < 7; i++ {
		h.srv.RecordScan(ids[0], apitest.Scan{Status: StatusValid, ExpiryDate: "2030-01-01", Days: apitest.Days(30 - i)})
	}
	h.srv.RecordScan(ids[1], apitest.Scan{Status: StatusValid, ExpiryDate: "2026-10-20", Days: apitest.Days(3)})
	h.srv.RecordScan(ids[2], apitest.Scan{Status: StatusInvalid, ExpiryDate: NoCertificate})

	ctx := context.Background()
	page, err := h.client.ListDomains(ctx, ListQuery{Page: 1, PerPage: 100, Filters: Filters{ExpiredSoon: true}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Domains) != 1 || page.Domains[0].ID != ids[1] {
		t.Fatalf("expected only the expiring domain, got %+v", page.Domains)
	}

	page, err = h.client.ListDomains(ctx, ListQuery{Page: 1, PerPage: 100, Filters: Filters{SSLStatus: StatusInvalid}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Domains) != 1 || page.Domains[0].SSLExpiryDate != NoCertificate {
		t.Fatalf("expected only the invalid domain, got %+v", page.Domains)
	}

	page, err = h.client.ListDomains(ctx, ListQuery{Page: 1, PerPage: 100, Filters: Filters{Search: "DOMAIN-001"}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Domains) != 1 {
		t.Fatalf("expected one search hit, got %d", len(page.Domains))
	}
	history := page.Domains[0].StatusHistory
	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	if d := history[0].DaysUntilExpiry; d == nil || *d != 24 {
		t.Errorf("expected newest history entry first, got %v", d)
	}
}

func TestListDomainsSortDescending(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	h.srv.SeedDomains(5)

	page, err := h.client.ListDomains(context.Background(), ListQuery{Page: 1, PerPage: 2, SortBy: "domain", SortOrder: Desc})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", page.TotalPages)
	}
	if page.Domains[0].Domain != "domain-005.example.com" {
		t.Errorf("expected domain-005.example.com first, got %s", page.Domains[0].Domain)
	}
}

func TestDomainPageBareArray(t *testing.T) {
	var p DomainPage
	if err := json.Unmarshal([]byte(`[{"id":1,"domain":"a.com"},{"id":2,"domain":"b.com"}]`), &p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Paged {
		t.Fatalf("expected bare array to be unpaged")
	}
	if len(p.Domains) != 2 || p.Page != 1 || p.TotalPages != 1 {
		t.Fatalf("unexpected page %+v", p)
	}
}

func TestCreateDomain(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ctx := context.Background()

	if _, err := h.client.CreateDomain(ctx, "   ", ""); err != ErrEmptyDomain {
		t.Fatalf("expected ErrEmptyDomain, got %v", err)
	}

	d, err := h.client.CreateDomain(ctx, " Example.COM ", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.Domain != "example.com" || d.Notes != nil {
		t.Fatalf("unexpected domain %+v", d)
	}

	_, err = h.client.CreateDomain(ctx, "example.com", "dup")
	if got := DetailOf(err, "Error adding domain"); got != "Domain already exists" {
		t.Fatalf("expected duplicate detail, got %q", got)
	}

	_, err = h.client.CreateDomain(ctx, "localhost", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bare suffix, got %v", err)
	}
}

func TestBulkCreatePartialFailure(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)

	names := ParseDomainList("a.example.com\n\n  b.example.com  \nnot a domain\n")
	if len(names) != 3 {
		t.Fatalf("expected 3 parsed names, got %v", names)
	}
	r, err := h.client.BulkCreate(context.Background(), names)
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}
	if r.TotalAdded != 2 || r.TotalFailed != 1 {
		t.Fatalf("expected 2 added and 1 failed, got %+v", r)
	}
	if r.Failed[0].Domain != "not a domain" {
		t.Errorf("unexpected failure %+v", r.Failed[0])
	}

	before := h.srv.Requests()
	if _, err := h.client.BulkCreate(context.Background(), ParseDomainList("\n \n")); err != ErrNoDomains {
		t.Fatalf("expected ErrNoDomains, got %v", err)
	}
	if h.srv.Requests() != before {
		t.Fatalf("expected no request for empty input")
	}
}

func TestBulkDeleteByName(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	h.srv.SeedDomains(2)

	r, err := h.client.BulkDeleteByName(context.Background(), []string{
		"domain-001.example.com", "missing.example.com", "domain-002.example.com",
	})
	if err != nil {
		t.Fatalf("delete by name failed: %v", err)
	}
	if r.DeletedCount != 2 {
		t.Errorf("expected 2 deleted, got %d", r.DeletedCount)
	}
	if len(r.NotFoundDomains) != 1 || r.NotFoundDomains[0] != "missing.example.com" {
		t.Errorf("unexpected not found list %v", r.NotFoundDomains)
	}
	if h.srv.DomainCount() != 0 {
		t.Errorf("expected no domains left, got %d", h.srv.DomainCount())
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.ViewerUser, apitest.ViewerPass, false)
	ids, _ := h.srv.SeedDomains(1)

	err := h.client.DeleteDomain(context.Background(), ids[0])
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if h.store.Token() == "" {
		t.Fatalf("a 403 must not end the session")
	}
}

func TestDeleteAndBulkDelete(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ids, _ := h.srv.SeedDomains(4)
	ctx := context.Background()

	if err := h.client.DeleteDomain(ctx, ids[0]); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	err := h.client.DeleteDomain(ctx, ids[0])
	if got := DetailOf(err, "Error deleting domain"); got != "Domain not found" {
		t.Fatalf("expected not found, got %q", got)
	}

	r, err := h.client.BulkDelete(ctx, ids[1:])
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if r.DeletedCount != 3 {
		t.Errorf("expected 3 deleted, got %d", r.DeletedCount)
	}
}

func TestEmptySelectionMakesNoRequest(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	before := h.srv.Requests()

	if _, err := h.client.ScanDomains(context.Background(), nil); err != ErrNoSelection {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, err := h.client.BulkDelete(context.Background(), []int{}); err != ErrNoSelection {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if h.srv.Requests() != before {
		t.Fatalf("expected no HTTP requests, got %d", h.srv.Requests()-before)
	}
}

func TestScanLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ids, _ := h.srv.SeedDomains(2)
	ctx := context.Background()

	st, err := h.client.ScanStatus(ctx, ids[0])
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.Status != "never_scanned" || st.LastScan != nil {
		t.Fatalf("unexpected initial status %+v", st)
	}

	ts, err := h.client.ScanDomains(ctx, []int{ids[0], 9999})
	if err != nil {
		t.Fatalf("scan domains failed: %v", err)
	}
	if ts.DomainCount != 1 || ts.Domains[0] != "domain-001.example.com" {
		t.Fatalf("unexpected targeted scan %+v", ts)
	}
	if st, _ = h.client.ScanStatus(ctx, ids[0]); st.Status != "pending" {
		t.Fatalf("expected pending, got %s", st.Status)
	}

	h.srv.RecordScan(ids[0], apitest.Scan{Status: StatusValid, ExpiryDate: "2030-01-01", Days: apitest.Days(100)})
	st, _ = h.client.ScanStatus(ctx, ids[0])
	if st.Status != "completed" || st.ScanCount != 1 || st.LastScan == nil {
		t.Fatalf("unexpected completed status %+v", st)
	}

	ack, err := h.client.TriggerScan(ctx)
	if err != nil || ack.Message == "" {
		t.Fatalf("trigger failed: %v", err)
	}
	if n := h.srv.RequestsTo(http.MethodPost, "/api/scan/trigger"); n != 1 {
		t.Fatalf("expected one trigger request, got %d", n)
	}
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ctx := context.Background()

	s, err := h.client.Summary(ctx)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.TotalDomains != 0 || s.LastScanTime != nil {
		t.Fatalf("unexpected empty summary %+v", s)
	}

	ids, _ := h.srv.SeedDomains(3)
	h.srv.RecordScan(ids[0], apitest.Scan{Status: StatusValid, Days: apitest.Days(90)})
	h.srv.RecordScan(ids[1], apitest.Scan{Status: StatusValid, Days: apitest.Days(2)})
	h.srv.RecordScan(ids[2], apitest.Scan{Status: StatusInvalid})

	s, err = h.client.Summary(ctx)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.TotalDomains != 3 || s.SSLValidCount != 2 || s.ExpiredSoonCount != 1 || s.FailedCount != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.LastScanTime == nil || s.LastScanTime.IsZero() {
		t.Fatalf("expected last scan time")
	}
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword, false)
	ids, _ := h.srv.SeedDomains(2)
	h.srv.RecordScan(ids[0], apitest.Scan{Status: StatusValid, ExpiryDate: "2030-01-01", Days: apitest.Days(100)})
	h.srv.RecordScan(ids[1], apitest.Scan{Status: StatusInvalid, ExpiryDate: NoCertificate})

	if u := h.client.ExportURL(StatusValid); !strings.HasSuffix(u, "/export/csv?ssl_status=VALID") {
		t.Fatalf("unexpected export url %s", u)
	}

	var buf bytes.Buffer
	name, err := h.client.ExportCSV(context.Background(), &buf, StatusValid)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasPrefix(name, "ssl_report_") || !strings.HasSuffix(name, ".csv") {
		t.Errorf("unexpected filename %s", name)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "Domain,SSL Status,Expiry Date") {
		t.Errorf("unexpected header %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "domain-001.example.com,VALID,2030-01-01,100") {
		t.Errorf("unexpected row %s", lines[1])
	}
}

func TestNetworkError(t *testing.T) {
	store := session.New(session.NewMemoryKV(), session.NewMemoryKV(), zerolog.Nop())
	store.SetToken("tok", false)
	c := NewClient("http://127.0.0.1:1/api", authfetch.New(store), nil)

	_, err := c.Summary(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if DetailOf(err, "x") != NetworkMessage {
		t.Fatalf("unexpected message %q", DetailOf(err, "x"))
	}
}

func TestDecodeError(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"detail":"Domain not found"}`, "Domain not found"},
		{`{"detail":[{"loc":["body","domain"],"msg":"field required"}]}`, "fallback"},
		{`{"error":"boom"}`, "boom"},
		{`not json`, "fallback"},
	}
	for _, tc := range cases {
		if got := decodeError(400, []byte(tc.body), "fallback").Detail; got != tc.want {
			t.Errorf("decodeError(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}
