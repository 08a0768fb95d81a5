// Package dashboard polls the summary counters on a fixed interval.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/rs/zerolog"
)

// DefaultInterval is the summary poll period.
const DefaultInterval = 30 * time.Second

// SummaryFetcher reads the summary counters. *api.Client satisfies it.
type SummaryFetcher interface {
	Summary(ctx context.Context) (*api.Summary, error)
}

// Poller keeps the latest summary. Poll failures are logged and keep the
// previous values on screen.
type Poller struct {
	fetcher  SummaryFetcher
	interval time.Duration
	logger   zerolog.Logger
	onUpdate func(*api.Summary)

	start sync.Once

	mu      sync.RWMutex
	summary *api.Summary
	updated time.Time
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithOnUpdate registers a callback run after every successful refresh.
func WithOnUpdate(f func(*api.Summary)) Option {
	return func(p *Poller) { p.onUpdate = f }
}

func New(fetcher SummaryFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start refreshes once and then every interval until ctx is done. Calls
// after the first are ignored.
func (p *Poller) Start(ctx context.Context) {
	p.start.Do(func() {
		p.Refresh(ctx)
		go p.loop(ctx)
	})
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("dashboard poller stopped")
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh fetches the summary now.
func (p *Poller) Refresh(ctx context.Context) error {
	s, err := p.fetcher.Summary(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to refresh dashboard summary")
		return err
	}

	p.mu.Lock()
	p.summary = s
	p.updated = time.Now()
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(s)
	}
	return nil
}

// Summary returns the latest summary, or nil before the first success.
func (p *Poller) Summary() *api.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.summary
}

// Updated is when the summary was last refreshed.
func (p *Poller) Updated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated
}

// Counters formats the latest summary for display.
func (p *Poller) Counters(loc *time.Location) render.Counters {
	return render.DashboardCounters(p.Summary(), loc)
}
