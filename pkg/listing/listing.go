// Package listing owns the domain list state: page, sort and filters.
package listing

import (
	"context"
	"strings"
	"sync"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrStale is returned by Load when a newer load started before this one
// finished. The response was discarded.
var ErrStale = errors.New("stale list response discarded")

// ErrUnknownFilter is returned by QuickFilter for unrecognised names.
var ErrUnknownFilter = errors.New("unknown quick filter")

const (
	DefaultPerPage = 100
	DefaultSortBy  = "domain"
)

// Lister fetches one page of domains. *api.Client satisfies it.
type Lister interface {
	ListDomains(ctx context.Context, q api.ListQuery) (*api.DomainPage, error)
}

// State is a snapshot of the list. Page is always within [1, TotalPages]
// after a successful load.
type State struct {
	Page       int
	TotalPages int
	Total      int
	PerPage    int
	SortBy     string
	SortOrder  api.SortOrder
	Filters    api.Filters
	Domains    []api.Domain
	Paged      bool
	Loaded     bool
	Err        string
}

// Query is the request the state describes for page.
func (s State) Query(page int) api.ListQuery {
	return api.ListQuery{
		Page:      page,
		PerPage:   s.PerPage,
		SortBy:    s.SortBy,
		SortOrder: s.SortOrder,
		Filters:   s.Filters,
	}
}

// Sink receives the state after every load, successful or not.
type Sink interface {
	Render(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) Render(s State) { f(s) }

// Controller is the single owner of list state. It is safe for concurrent
// use; overlapping loads resolve in favour of the most recently started one.
type Controller struct {
	lister Lister
	sink   Sink
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	seq   uint64
}

type Option func(*Controller)

func WithPerPage(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.state.PerPage = n
		}
	}
}

// WithSort sets the initial sort column and direction.
func WithSort(column string, order api.SortOrder) Option {
	return func(c *Controller) {
		if column != "" {
			c.state.SortBy = column
		}
		if order == api.Asc || order == api.Desc {
			c.state.SortOrder = order
		}
	}
}

// WithFilters sets the initial filters.
func WithFilters(f api.Filters) Option {
	return func(c *Controller) { c.state.Filters = f }
}

func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New builds a Controller sorted by domain ascending on page 1.
func New(lister Lister, opts ...Option) *Controller {
	c := &Controller{
		lister: lister,
		logger: zerolog.Nop(),
		state: State{
			Page:       1,
			TotalPages: 1,
			PerPage:    DefaultPerPage,
			SortBy:     DefaultSortBy,
			SortOrder:  api.Asc,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Domains = append([]api.Domain(nil), c.state.Domains...)
	return s
}

// Load fetches page with the current sort and filters. On failure paging
// state is left untouched and the error message is exposed through State.Err.
func (c *Controller) Load(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.seq++
	seq := c.seq
	q := c.state.Query(page)
	c.mu.Unlock()

	result, err := c.lister.ListDomains(ctx, q)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug().Int("page", page).Msg("discarding stale list response")
		return ErrStale
	}
	if err != nil {
		c.state.Err = api.DetailOf(err, "Error loading domains")
		snap := c.snapshot()
		c.mu.Unlock()
		c.logger.Error().Err(err).Int("page", page).Msg("failed to load domains")
		c.render(snap)
		return err
	}

	if result.TotalPages < 1 {
		result.TotalPages = 1
	}
	if result.Paged && result.Page > result.TotalPages {
		if result.Total > 0 {
			// The list shrank under us; land on the new last page.
			c.mu.Unlock()
			return c.Load(ctx, result.TotalPages)
		}
		result.Page = 1
	}

	c.state.Page = result.Page
	c.state.TotalPages = result.TotalPages
	c.state.Total = result.Total
	c.state.Paged = result.Paged
	c.state.Domains = result.Domains
	c.state.Loaded = true
	c.state.Err = ""
	snap := c.snapshot()
	c.mu.Unlock()

	c.render(snap)
	return nil
}

func (c *Controller) render(s State) {
	if c.sink != nil {
		c.sink.Render(s)
	}
}

// Reload fetches the current page again.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	page := c.state.Page
	c.mu.Unlock()
	return c.Load(ctx, page)
}

// ChangePage loads page n. Out-of-range pages are ignored without a request.
func (c *Controller) ChangePage(ctx context.Context, n int) error {
	c.mu.Lock()
	total := c.state.TotalPages
	c.mu.Unlock()
	if n < 1 || n > total {
		return nil
	}
	return c.Load(ctx, n)
}

// Sort orders by column, flipping direction when column is already the sort
// key. The list restarts at page 1.
func (c *Controller) Sort(ctx context.Context, column string) error {
	c.mu.Lock()
	if c.state.SortBy == column {
		c.state.SortOrder = c.state.SortOrder.Flip()
	} else {
		c.state.SortBy = column
		c.state.SortOrder = api.Asc
	}
	c.state.Page = 1
	c.mu.Unlock()
	return c.Load(ctx, 1)
}

// ApplyFilters replaces the filters and reloads from page 1.
func (c *Controller) ApplyFilters(ctx context.Context, f api.Filters) error {
	c.mu.Lock()
	c.state.Filters = f
	c.state.Page = 1
	c.mu.Unlock()
	return c.Load(ctx, 1)
}

// QuickFilters maps shortcut names onto filter sets. Each sets at most one
// dimension and clears the rest.
var QuickFilters = map[string]api.Filters{
	"all":          {},
	"valid":        {SSLStatus: api.StatusValid},
	"expiring":     {ExpiredSoon: true},
	"expired":      {ExpiredSoon: true},
	"expired_soon": {ExpiredSoon: true},
	"invalid":      {SSLStatus: api.StatusInvalid},
	"failed":       {SSLStatus: api.StatusInvalid},
}

// QuickFilter applies a named shortcut such as "valid" or "expiring".
func (c *Controller) QuickFilter(ctx context.Context, name string) error {
	f, ok := QuickFilters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return errors.Wrap(ErrUnknownFilter, name)
	}
	return c.ApplyFilters(ctx, f)
}
