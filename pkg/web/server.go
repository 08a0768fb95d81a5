// Package web serves the local certificate dashboard. One Server is one
// signed-in browser: it owns a list controller, a dashboard poller and the
// session store.
package web

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harveywai/certwatch/pkg/actions"
	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/dashboard"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/harveywai/certwatch/pkg/middleware"
	"github.com/harveywai/certwatch/pkg/notify"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const loginPath = "/login"

// Deps are the client components the dashboard is built from.
type Deps struct {
	Client  *api.Client
	Auth    *api.Auth
	Session *session.Store
	List    *listing.Controller
	Poller  *dashboard.Poller
	Actions *actions.Actions
	Notes   *notify.Recorder
}

// Options tune presentation.
type Options struct {
	Thresholds  render.Thresholds
	HistorySize int
	Location    *time.Location
	Logger      zerolog.Logger
}

// Server is the dashboard web application.
type Server struct {
	Deps
	opts Options

	pollCtx    context.Context
	startPoll  sync.Once
	mu         sync.Mutex
	expiredMsg string
}

// New builds a Server. pollCtx bounds the dashboard poller's lifetime.
func New(pollCtx context.Context, deps Deps, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = render.DefaultHistorySize
	}
	if opts.Thresholds.UrgentDays == 0 {
		opts.Thresholds = render.DefaultThresholds()
	}
	return &Server{Deps: deps, opts: opts, pollCtx: pollCtx}
}

// OnUnauthorized is the authenticated fetch hook. It remembers why the
// session ended so the login page can say so.
func (s *Server) OnUnauthorized(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Concurrent calls racing a 401 see an empty token; keep the expiry reason.
	if s.expiredMsg == "" || errors.Is(reason, authfetch.ErrSessionExpired) {
		s.expiredMsg = reason.Error()
	}
	s.opts.Logger.Info().Err(reason).Msg("session ended, login required")
}

func (s *Server) takeExpired() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.expiredMsg
	s.expiredMsg = ""
	return msg
}

// Register mounts the dashboard routes on r.
func (s *Server) Register(r *gin.Engine) {
	r.GET(loginPath, s.handleLoginPage)
	r.POST(loginPath, s.handleLogin)
	r.POST("/logout", s.handleLogout)

	app := r.Group("")
	app.Use(middleware.RequireSession(s.Session.IsAuthenticated, loginPath))
	{
		app.GET("/", s.handleDashboard)
		app.GET("/page/:n", s.handleChangePage)
		app.GET("/sort/:column", s.handleSort)
		app.GET("/filter/:name", s.handleQuickFilter)
		app.POST("/filters", s.handleApplyFilters)
		app.POST("/refresh", s.handleRefresh)
		app.GET("/export", s.handleExport)

		app.POST("/actions/add", s.handleAdd)
		app.POST("/actions/bulk-add", s.handleBulkAdd)
		app.POST("/actions/delete/:id", s.handleDelete)
		app.POST("/actions/bulk-delete", s.handleBulkDelete)
		app.POST("/actions/delete-names", s.handleDeleteNames)
		app.POST("/actions/scan", s.handleScanAll)
		app.POST("/actions/scan-selected", s.handleScanSelected)
		app.POST("/actions/scan/:id", s.handleScanOne)
	}
}

// Routes builds a gin engine with the dashboard mounted.
func (s *Server) Routes() *gin.Engine {
	r := gin.Default()
	s.Register(r)
	return r
}

// back redirects to the dashboard, or to the login page when err means the
// session is gone.
func (s *Server) back(c *gin.Context, err error) {
	if err != nil && api.IsUnauthorized(err) {
		c.Redirect(http.StatusSeeOther, loginPath)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleLoginPage(c *gin.Context) {
	if s.Session.IsAuthenticated() {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginPage(s.takeExpired(), "")))
}

func (s *Server) handleLogin(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	remember := c.PostForm("remember") != ""

	if _, err := s.Auth.Login(c.Request.Context(), username, password, remember); err != nil {
		s.opts.Logger.Info().Str("username", username).Err(err).Msg("login failed")
		c.Data(http.StatusUnauthorized, "text/html; charset=utf-8", []byte(loginPage("", api.DetailOf(err, "Login failed"))))
		return
	}
	s.opts.Logger.Info().Str("username", username).Bool("remember", remember).Msg("logged in")

	// Views may still hold the previous session's data.
	ctx := c.Request.Context()
	if err := s.List.Load(ctx, 1); err != nil && !errors.Is(err, listing.ErrStale) {
		s.opts.Logger.Warn().Err(err).Msg("failed to load domains after login")
	}
	if err := s.Poller.Refresh(ctx); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("failed to load summary after login")
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.Auth.Logout(c.Request.Context()); err != nil {
		s.opts.Logger.Error().Err(err).Msg("failed to clear session on logout")
	}
	c.Redirect(http.StatusSeeOther, loginPath)
}

func (s *Server) handleDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	s.startPoll.Do(func() {
		s.Poller.Start(s.pollCtx)
	})
	if st := s.List.State(); !st.Loaded && st.Err == "" {
		if err := s.List.Load(ctx, 1); api.IsUnauthorized(err) {
			c.Redirect(http.StatusSeeOther, loginPath)
			return
		}
	}

	page := dashboardPage(pageData{
		State:    s.List.State(),
		Counters: s.Poller.Counters(s.opts.Location),
		User:     s.Session.User(),
		Flashes:  s.Notes.Drain(),
		Render:   render.Options{Thresholds: s.opts.Thresholds, HistorySize: s.opts.HistorySize},
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) handleChangePage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.back(c, s.List.ChangePage(c.Request.Context(), n))
}

func (s *Server) handleSort(c *gin.Context) {
	s.back(c, s.List.Sort(c.Request.Context(), c.Param("column")))
}

func (s *Server) handleQuickFilter(c *gin.Context) {
	err := s.List.QuickFilter(c.Request.Context(), c.Param("name"))
	if err != nil && !api.IsUnauthorized(err) {
		s.Notes.Alert(err.Error(), true)
	}
	s.back(c, err)
}

func (s *Server) handleApplyFilters(c *gin.Context) {
	f := api.Filters{
		SSLStatus:   c.PostForm("ssl_status"),
		ExpiredSoon: c.PostForm("expiry") == "expired_soon",
		Search:      strings.TrimSpace(c.PostForm("search")),
	}
	s.back(c, s.List.ApplyFilters(c.Request.Context(), f))
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.back(c, s.Actions.Refresh(c.Request.Context()))
}

func (s *Server) handleExport(c *gin.Context) {
	var buf bytes.Buffer
	status := s.List.State().Filters.SSLStatus
	name, err := s.Client.ExportCSV(c.Request.Context(), &buf, status)
	if err != nil {
		if !api.IsUnauthorized(err) {
			s.Notes.Alert(api.DetailOf(err, "Error exporting CSV"), true)
		}
		s.back(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (s *Server) handleAdd(c *gin.Context) {
	_, err := s.Actions.AddDomain(c.Request.Context(), c.PostForm("domain"), c.PostForm("notes"))
	s.back(c, err)
}

func (s *Server) handleBulkAdd(c *gin.Context) {
	_, err := s.Actions.BulkAdd(c.Request.Context(), c.PostForm("domains"))
	s.back(c, err)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.back(c, s.Actions.Delete(c.Request.Context(), id))
}

func (s *Server) handleBulkDelete(c *gin.Context) {
	_, err := s.Actions.BulkDelete(c.Request.Context(), formIDs(c))
	s.back(c, err)
}

func (s *Server) handleDeleteNames(c *gin.Context) {
	_, err := s.Actions.DeleteByName(c.Request.Context(), c.PostForm("domains"))
	s.back(c, err)
}

func (s *Server) handleScanAll(c *gin.Context) {
	s.back(c, s.Actions.ScanAll(c.Request.Context()))
}

func (s *Server) handleScanSelected(c *gin.Context) {
	_, err := s.Actions.ScanSelected(c.Request.Context(), formIDs(c))
	s.back(c, err)
}

func (s *Server) handleScanOne(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	_, err = s.Actions.ScanOne(c.Request.Context(), id)
	s.back(c, err)
}

func formIDs(c *gin.Context) []int {
	var ids []int
	for _, v := range c.PostFormArray("ids") {
		if id, err := strconv.Atoi(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
