// Package testserver runs an apitest backend on a loopback port for the
// duration of a test.
package testserver

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/harveywai/certwatch/pkg/apitest"
)

// Server is a Backend listening on a loopback port.
type Server struct {
	*apitest.Backend
	srv *httptest.Server
}

// New starts a Backend and stops it when the test ends.
func New(tb testing.TB) *Server {
	tb.Helper()
	gin.SetMode(gin.TestMode)
	b, err := apitest.New()
	if err != nil {
		tb.Fatalf("failed to start fake backend: %v", err)
	}
	srv := httptest.NewServer(b.Handler())
	tb.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	return &Server{Backend: b, srv: srv}
}

// BaseURL is the API root clients should be configured with.
func (s *Server) BaseURL() string {
	return s.srv.URL + "/api"
}
