package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testServer struct {
	*Backend
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b, err := New()
	if err != nil {
		t.Fatalf("failed to start backend: %v", err)
	}
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	return &testServer{Backend: b, srv: srv}
}

func (s *testServer) BaseURL() string {
	return s.srv.URL + "/api"
}

func do(t *testing.T, s *testServer, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.BaseURL()+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]interface{}{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	resp, _ := do(t, s, http.MethodGet, "/dashboard/summary", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	s := newTestServer(t)
	token, err := s.Token(AdminUser)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if resp, _ := do(t, s, http.MethodGet, "/auth/me", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	s.Revoke(token)
	if resp, _ := do(t, s, http.MethodGet, "/auth/me", token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", resp.StatusCode)
	}
}

func TestViewerCannotDelete(t *testing.T) {
	s := newTestServer(t)
	id, err := s.AddDomain("example.com")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	token, _ := s.Token(ViewerUser)
	resp, _ := do(t, s, http.MethodDelete, "/domains/"+strconv.Itoa(id), token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if s.DomainCount() != 1 {
		t.Fatalf("domain should not be deleted")
	}
}

func TestCreateRejectsInvalidDomain(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.Token(AdminUser)
	resp, out := do(t, s, http.MethodPost, "/domains", token, map[string]string{"domain": "not a domain"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out["detail"] != "Invalid domain format" {
		t.Fatalf("unexpected detail %v", out["detail"])
	}
}

func TestScanStaysPendingWithoutProber(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.AddDomain("example.com")
	token, _ := s.Token(AdminUser)

	_, out := do(t, s, http.MethodGet, "/scan/status/"+strconv.Itoa(id), token, nil)
	if out["status"] != "never_scanned" {
		t.Fatalf("expected never_scanned, got %v", out["status"])
	}
	do(t, s, http.MethodPost, "/scan/trigger", token, nil)
	_, out = do(t, s, http.MethodGet, "/scan/status/"+strconv.Itoa(id), token, nil)
	if out["status"] != "pending" {
		t.Fatalf("expected pending, got %v", out["status"])
	}
}

func TestProberCompletesScans(t *testing.T) {
	s := newTestServer(t)
	ids, _ := s.SeedDomains(3)
	token, _ := s.Token(AdminUser)

	var mu sync.Mutex
	probed := map[string]bool{}
	s.SetProber(func(ctx context.Context, domain string) Scan {
		mu.Lock()
		probed[domain] = true
		mu.Unlock()
		return Scan{Status: "VALID", ExpiryDate: "2030-01-01", Days: Days(400)}
	}, zerolog.Nop())

	resp, _ := do(t, s, http.MethodPost, "/scan/domains", token, map[string][]int{"domain_ids": ids[:2]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	s.WaitScans()

	if len(probed) != 2 {
		t.Fatalf("expected 2 probes, got %v", probed)
	}
	_, out := do(t, s, http.MethodGet, "/scan/status/"+strconv.Itoa(ids[0]), token, nil)
	if out["status"] != "completed" {
		t.Fatalf("expected completed, got %v", out["status"])
	}
	_, out = do(t, s, http.MethodGet, "/scan/status/"+strconv.Itoa(ids[2]), token, nil)
	if out["status"] != "never_scanned" {
		t.Fatalf("unselected domain should not be scanned, got %v", out["status"])
	}
}

func TestProbeReadsCertificate(t *testing.T) {
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	res := probeAddr(context.Background(), strings.TrimPrefix(ts.URL, "https://"))
	if res.Status != "VALID" {
		t.Fatalf("expected VALID, got %q", res.Status)
	}
	if res.Days == nil || *res.Days <= 0 {
		t.Fatalf("expected positive days, got %v", res.Days)
	}
}

func TestProbeUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(ts.URL, "http://")
	ts.Close()

	res := probeAddr(context.Background(), addr)
	if res.Status != "INVALID" || res.Days != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}
