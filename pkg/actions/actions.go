// Package actions implements the user-initiated operations on the domain
// list: add, delete and scan, with confirmation prompts, result messages and
// the follow-up refresh of dashboard and list.
package actions

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/harveywai/certwatch/pkg/notify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled")

// DefaultScanWait is how long after a scan trigger the data is reloaded.
const DefaultScanWait = 10 * time.Second

// maxNotFoundShown caps the names listed after a delete by name.
const maxNotFoundShown = 10

// API is the subset of *api.Client the actions use.
type API interface {
	CreateDomain(ctx context.Context, domain, notes string) (*api.Domain, error)
	BulkCreate(ctx context.Context, domains []string) (*api.BulkCreateResult, error)
	DeleteDomain(ctx context.Context, id int) error
	BulkDelete(ctx context.Context, ids []int) (*api.BulkDeleteResult, error)
	BulkDeleteByName(ctx context.Context, domains []string) (*api.DeleteByNameResult, error)
	TriggerScan(ctx context.Context) (*api.ScanAck, error)
	ScanDomains(ctx context.Context, ids []int) (*api.TargetedScan, error)
}

// Refresher reloads a view. The dashboard poller satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reloader reloads the current list page. The list controller satisfies it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Actions runs user operations and keeps the views fresh afterwards.
type Actions struct {
	api      API
	notifier notify.Notifier
	dash     Refresher
	list     Reloader
	logger   zerolog.Logger
	scanWait time.Duration
	after    func(time.Duration, func())

	wg sync.WaitGroup
}

type Option func(*Actions)

func WithScanWait(d time.Duration) Option {
	return func(a *Actions) {
		if d > 0 {
			a.scanWait = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Actions) { a.logger = l }
}

// WithScheduler replaces time.AfterFunc for the delayed post-scan reload.
func WithScheduler(after func(time.Duration, func())) Option {
	return func(a *Actions) { a.after = after }
}

// New builds Actions. dash and list may be nil when there is nothing to refresh.
func New(client API, notifier notify.Notifier, dash Refresher, list Reloader, opts ...Option) *Actions {
	a := &Actions{
		api:      client,
		notifier: notifier,
		dash:     dash,
		list:     list,
		logger:   zerolog.Nop(),
		scanWait: DefaultScanWait,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh reloads dashboard summary and list page together. A failure in
// one does not cancel the other.
func (a *Actions) Refresh(ctx context.Context) error {
	g := new(errgroup.Group)
	if a.dash != nil {
		g.Go(func() error {
			return a.dash.Refresh(ctx)
		})
	}
	if a.list != nil {
		g.Go(func() error {
			if err := a.list.Reload(ctx); err != nil && !errors.Is(err, listing.ErrStale) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *Actions) refreshQuietly(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("refresh after action failed")
	}
}

// scheduleReload refreshes the views once the scan had time to finish.
// Scan completion is not observed.
func (a *Actions) scheduleReload() {
	a.wg.Add(1)
	a.after(a.scanWait, func() {
		defer a.wg.Done()
		a.refreshQuietly(context.Background())
	})
}

// Wait blocks until all scheduled reloads have run.
func (a *Actions) Wait() {
	a.wg.Wait()
}

func (a *Actions) fail(err error, fallback string) error {
	a.logger.Debug().Err(err).Msg(fallback)
	a.notifier.Alert(api.DetailOf(err, fallback), true)
	return err
}

// AddDomain adds one domain.
func (a *Actions) AddDomain(ctx context.Context, domain, notes string) (*api.Domain, error) {
	d, err := a.api.CreateDomain(ctx, domain, notes)
	if err != nil {
		return nil, a.fail(err, "Error adding domain")
	}
	a.notifier.Alert(notify.DomainAdded, false)
	a.refreshQuietly(ctx)
	return d, nil
}

// BulkAdd adds one domain per non-blank line of text.
func (a *Actions) BulkAdd(ctx context.Context, text string) (*api.BulkCreateResult, error) {
	r, err := a.api.BulkCreate(ctx, api.ParseDomainList(text))
	if err != nil {
		return nil, a.fail(err, "Error adding domains")
	}
	a.notifier.Alert(notify.Format(notify.BulkAdded, map[string]string{
		"added":  strconv.Itoa(r.TotalAdded),
		"failed": strconv.Itoa(r.TotalFailed),
	}), false)
	a.refreshQuietly(ctx)
	return r, nil
}

// Delete removes one domain after confirmation.
func (a *Actions) Delete(ctx context.Context, id int) error {
	if !a.notifier.Confirm(notify.ConfirmDelete) {
		return ErrCancelled
	}
	if err := a.api.DeleteDomain(ctx, id); err != nil {
		return a.fail(err, "Error deleting domain")
	}
	a.refreshQuietly(ctx)
	return nil
}

// BulkDelete removes the selected ids after confirmation.
func (a *Actions) BulkDelete(ctx context.Context, ids []int) (*api.BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, a.fail(api.ErrNoSelection, "Error deleting domains")
	}
	if !a.notifier.Confirm(notify.Format(notify.ConfirmBulkDelete, count(len(ids)))) {
		return nil, ErrCancelled
	}
	r, err := a.api.BulkDelete(ctx, ids)
	if err != nil {
		return nil, a.fail(err, "Error deleting domains")
	}
	a.refreshQuietly(ctx)
	return r, nil
}

// DeleteByName removes one hostname per non-blank line of text after
// confirmation and reports names the backend did not know.
func (a *Actions) DeleteByName(ctx context.Context, text string) (*api.DeleteByNameResult, error) {
	names := api.ParseDomainList(text)
	if len(names) == 0 {
		return nil, a.fail(api.ErrNoDomains, "Error deleting domains")
	}
	if !a.notifier.Confirm(notify.Format(notify.ConfirmDeleteNames, count(len(names)))) {
		return nil, ErrCancelled
	}
	r, err := a.api.BulkDeleteByName(ctx, names)
	if err != nil {
		return nil, a.fail(err, "Error deleting domains")
	}
	a.notifier.Alert(DeleteByNameMessage(r), false)
	a.refreshQuietly(ctx)
	return r, nil
}

// DeleteByNameMessage summarises a delete by name, listing at most ten
// unknown names.
func DeleteByNameMessage(r *api.DeleteByNameResult) string {
	msg := notify.Format(notify.DomainsDeleted, count(r.DeletedCount))
	missing := r.NotFoundDomains
	if len(missing) == 0 {
		return msg
	}
	shown := missing
	if len(shown) > maxNotFoundShown {
		shown = shown[:maxNotFoundShown]
	}
	msg += "\n\n" + notify.Format(notify.NotFoundHeader, count(len(missing))) + "\n" + strings.Join(shown, "\n")
	if extra := len(missing) - len(shown); extra > 0 {
		msg += "\n" + notify.Format(notify.NotFoundMore, count(extra))
	}
	return msg
}

// ScanAll triggers a full scan and reloads after the scan wait.
func (a *Actions) ScanAll(ctx context.Context) error {
	if _, err := a.api.TriggerScan(ctx); err != nil {
		return a.fail(err, "Error triggering scan")
	}
	a.logger.Info().Msg("full scan triggered")
	a.notifier.Alert(notify.ScanTriggered, false)
	a.scheduleReload()
	return nil
}

// ScanSelected triggers a scan of ids after confirmation. An empty selection
// is rejected without a request.
func (a *Actions) ScanSelected(ctx context.Context, ids []int) (*api.TargetedScan, error) {
	if len(ids) == 0 {
		return nil, a.fail(api.ErrNoSelection, "Error triggering SSL scan")
	}
	if !a.notifier.Confirm(notify.Format(notify.ConfirmScanMany, count(len(ids)))) {
		return nil, ErrCancelled
	}
	r, err := a.api.ScanDomains(ctx, ids)
	if err != nil {
		return nil, a.fail(err, "Error triggering SSL scan")
	}
	a.logger.Info().Int("domains", r.DomainCount).Msg("targeted scan triggered")
	a.notifier.Alert(notify.Format(notify.TargetedScan, count(r.DomainCount)), false)
	a.scheduleReload()
	return r, nil
}

// ScanOne triggers a scan of a single domain after confirmation.
func (a *Actions) ScanOne(ctx context.Context, id int) (*api.TargetedScan, error) {
	if !a.notifier.Confirm(notify.ConfirmScanOne) {
		return nil, ErrCancelled
	}
	r, err := a.api.ScanDomains(ctx, []int{id})
	if err != nil {
		return nil, a.fail(err, "Error triggering SSL scan")
	}
	name := strconv.Itoa(id)
	if len(r.Domains) > 0 {
		name = r.Domains[0]
	}
	a.logger.Info().Str("domain", name).Msg("single domain scan triggered")
	a.notifier.Alert(notify.Format(notify.SingleScan, map[string]string{"domain": name}), false)
	a.scheduleReload()
	return r, nil
}

func count(n int) map[string]string {
	return map[string]string{"count": strconv.Itoa(n)}
}
