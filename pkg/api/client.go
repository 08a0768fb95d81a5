// Package api is the typed client for the certificate monitoring backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/pkg/errors"
)

// Doer sends an HTTP request. *authfetch.Client and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues one call per backend operation. It holds no list state.
type Client struct {
	base   string
	authed Doer
	public Doer
}

// NewClient builds a Client. authed carries the bearer token; public is used
// for login only and defaults to http.DefaultClient.
func NewClient(baseURL string, authed Doer, public Doer) *Client {
	if public == nil {
		public = http.DefaultClient
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		authed: authed,
		public: public,
	}
}

// BaseURL returns the API root without trailing slash.
func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) url(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) call(ctx context.Context, doer Doer, method, path string, query url.Values, in, out interface{}, fallback string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := doer.Do(req)
	if err != nil {
		if errors.Is(err, authfetch.ErrNotAuthenticated) || errors.Is(err, authfetch.ErrSessionExpired) {
			return err
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw, fallback)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// Summary fetches the dashboard counters.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	var s Summary
	if err := c.call(ctx, c.authed, http.MethodGet, "/dashboard/summary", nil, nil, &s, "Error loading dashboard"); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListDomains fetches one page of domains for q.
func (c *Client) ListDomains(ctx context.Context, q ListQuery) (*DomainPage, error) {
	var p DomainPage
	if err := c.call(ctx, c.authed, http.MethodGet, "/domains", q.Values(), nil, &p, "Error loading domains"); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateDomain adds one domain. Blank names are rejected locally.
func (c *Client) CreateDomain(ctx context.Context, domain, notes string) (*Domain, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	body := struct {
		Domain string  `json:"domain"`
		Notes  *string `json:"notes"`
	}{Domain: domain}
	if n := strings.TrimSpace(notes); n != "" {
		body.Notes = &n
	}

	var d Domain
	if err := c.call(ctx, c.authed, http.MethodPost, "/domains", nil, body, &d, "Error adding domain"); err != nil {
		return nil, err
	}
	return &d, nil
}

// BulkCreate adds many domains; partial failure is reported in the result.
func (c *Client) BulkCreate(ctx context.Context, domains []string) (*BulkCreateResult, error) {
	domains = compact(domains)
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}
	body := struct {
		Domains []string `json:"domains"`
	}{domains}

	var r BulkCreateResult
	if err := c.call(ctx, c.authed, http.MethodPost, "/domains/bulk", nil, body, &r, "Error adding domains"); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteDomain removes one domain by id.
func (c *Client) DeleteDomain(ctx context.Context, id int) error {
	return c.call(ctx, c.authed, http.MethodDelete, "/domains/"+strconv.Itoa(id), nil, nil, nil, "Error deleting domain")
}

// BulkDelete removes the given ids.
func (c *Client) BulkDelete(ctx context.Context, ids []int) (*BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoSelection
	}
	body := struct {
		DomainIDs []int `json:"domain_ids"`
	}{ids}

	var r BulkDeleteResult
	if err := c.call(ctx, c.authed, http.MethodPost, "/domains/bulk-delete", nil, body, &r, "Error deleting domains"); err != nil {
		return nil, err
	}
	return &r, nil
}

// BulkDeleteByName removes domains by hostname and reports unknown names.
func (c *Client) BulkDeleteByName(ctx context.Context, domains []string) (*DeleteByNameResult, error) {
	domains = compact(domains)
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}
	body := struct {
		Domains []string `json:"domains"`
	}{domains}

	var r DeleteByNameResult
	if err := c.call(ctx, c.authed, http.MethodPost, "/domains/bulk-delete-by-name", nil, body, &r, "Error deleting domains"); err != nil {
		return nil, err
	}
	return &r, nil
}

// TriggerScan asks the backend to scan every domain. It does not wait for the scan.
func (c *Client) TriggerScan(ctx context.Context) (*ScanAck, error) {
	var r ScanAck
	if err := c.call(ctx, c.authed, http.MethodPost, "/scan/trigger", nil, nil, &r, "Error triggering scan"); err != nil {
		return nil, err
	}
	return &r, nil
}

// ScanDomains asks the backend to scan the given ids. It does not wait for the scan.
func (c *Client) ScanDomains(ctx context.Context, ids []int) (*TargetedScan, error) {
	if len(ids) == 0 {
		return nil, ErrNoSelection
	}
	body := struct {
		DomainIDs []int `json:"domain_ids"`
	}{ids}

	var r TargetedScan
	if err := c.call(ctx, c.authed, http.MethodPost, "/scan/domains", nil, body, &r, "Error triggering SSL scan"); err != nil {
		return nil, err
	}
	return &r, nil
}

// ScanStatus reports the scan progress of one domain.
func (c *Client) ScanStatus(ctx context.Context, id int) (*ScanStatus, error) {
	var r ScanStatus
	if err := c.call(ctx, c.authed, http.MethodGet, "/scan/status/"+strconv.Itoa(id), nil, nil, &r, "Error loading scan status"); err != nil {
		return nil, err
	}
	return &r, nil
}

// ExportURL is the CSV download location, filtered by sslStatus when set.
func (c *Client) ExportURL(sslStatus string) string {
	q := url.Values{}
	if sslStatus != "" {
		q.Set("ssl_status", sslStatus)
	}
	return c.url("/export/csv", q)
}

// ExportCSV streams the CSV report into w and returns the server-suggested filename.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer, sslStatus string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ExportURL(sslStatus), nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	resp, err := c.authed.Do(req)
	if err != nil {
		if IsUnauthorized(err) {
			return "", err
		}
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", decodeError(resp.StatusCode, raw, "Error exporting CSV")
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", errors.Wrap(err, "write csv")
	}

	filename := "ssl_report.csv"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, nil
}

// ParseDomainList splits free text into one trimmed name per non-blank line.
func ParseDomainList(text string) []string {
	return compact(strings.Split(text, "\n"))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
