package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/dashboard"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/pkg/errors"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (prompted when empty)")
	remember := fs.Bool("remember", true, "keep the session after this process exits")
	fs.Parse(args)

	if *password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, "read password")
		}
		*password = strings.TrimSpace(line)
	}

	r, err := a.auth.Login(ctx, *username, *password, *remember)
	if err != nil {
		return errors.New(api.DetailOf(err, "Login failed"))
	}
	color.Green("Logged in as %s (%s)", r.User.DisplayName(), r.User.RoleName)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	color.Green("Logged out")
	return nil
}

func notSignedIn(err error) error {
	if api.IsUnauthorized(err) {
		color.Red("%s. Run `certwatch login` to sign in.", errors.Cause(err))
		return silent(err)
	}
	return err
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	u, err := a.auth.FetchCurrentUser(ctx)
	if err != nil {
		return notSignedIn(err)
	}
	printUser(u)
	return nil
}

func runPasswd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	fs.Parse(args)

	msg, err := a.auth.ChangePassword(ctx, *current, *next)
	if err != nil {
		if api.IsUnauthorized(err) {
			return notSignedIn(err)
		}
		return errors.New(api.DetailOf(err, "Password change failed"))
	}
	color.Green("%s", msg)
	return nil
}

func runSummary(ctx context.Context, a *app, args []string) error {
	s, err := a.client.Summary(ctx)
	if err != nil {
		return err
	}
	printSummary(s)
	return nil
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", a.conf.DashboardRefresh, "poll interval")
	fs.Parse(args)

	p := dashboard.New(a.client,
		dashboard.WithInterval(*interval),
		dashboard.WithLogger(a.logger),
		dashboard.WithOnUpdate(func(s *api.Summary) {
			fmt.Printf("\n[%s]\n", time.Now().Format("15:04:05"))
			printSummary(s)
		}),
	)
	p.Start(ctx)
	<-ctx.Done()
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", a.conf.PerPage, "domains per page")
	sortBy := fs.String("sort", listing.DefaultSortBy, "sort column")
	order := fs.String("order", string(api.Asc), "asc or desc")
	status := fs.String("status", "", "VALID or INVALID")
	expiring := fs.Bool("expiring", false, "only domains expiring soon")
	search := fs.String("search", "", "substring match on the domain name")
	quick := fs.String("filter", "", "quick filter: all, valid, expiring, invalid")
	fs.Parse(args)

	filters := api.Filters{SSLStatus: strings.ToUpper(*status), ExpiredSoon: *expiring, Search: *search}
	if *quick != "" {
		f, ok := listing.QuickFilters[strings.ToLower(*quick)]
		if !ok {
			return errors.Wrap(listing.ErrUnknownFilter, *quick)
		}
		filters = f
	}

	c := listing.New(a.client,
		listing.WithPerPage(*perPage),
		listing.WithSort(*sortBy, api.SortOrder(strings.ToLower(*order))),
		listing.WithFilters(filters),
		listing.WithLogger(a.logger),
	)
	if err := c.Load(ctx, *page); err != nil {
		return err
	}
	printList(c.State(), a.thresholds(), a.conf.HistorySize)
	return nil
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)

	_, err := a.actions(nil).AddDomain(ctx, fs.Arg(0), *notes)
	return silent(err)
}

func readLines(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", errors.Wrap(err, "open domain list")
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "read domain list")
	}
	return string(raw), nil
}

func runBulkAdd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("bulk-add", flag.ExitOnError)
	file := fs.String("file", "", "file with one domain per line")
	fs.Parse(args)

	text, err := readLines(*file)
	if err != nil {
		return err
	}
	r, err := a.actions(nil).BulkAdd(ctx, text)
	if err != nil {
		return silent(err)
	}
	for _, f := range r.Failed {
		fmt.Printf("  %s: %s\n", f.Domain, color.RedString(f.Reason))
	}
	return nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Errorf("invalid domain id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return errors.New("delete takes exactly one domain id")
	}
	if err := a.actions(nil).Delete(ctx, ids[0]); err != nil {
		return silent(err)
	}
	color.Green("Domain deleted")
	return nil
}

func runBulkDelete(ctx context.Context, a *app, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	r, err := a.actions(nil).BulkDelete(ctx, ids)
	if err != nil {
		return silent(err)
	}
	color.Green("%s", r.Message)
	return nil
}

func runBulkDeleteNames(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("bulk-delete-names", flag.ExitOnError)
	file := fs.String("file", "", "file with one domain per line")
	fs.Parse(args)

	text, err := readLines(*file)
	if err != nil {
		return err
	}
	_, err = a.actions(nil).DeleteByName(ctx, text)
	return silent(err)
}

func runScan(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	wait := fs.Bool("wait", false, "wait for the scan window and print the refreshed summary")
	fs.Parse(args)

	ids, err := parseIDs(fs.Args())
	if err != nil {
		return err
	}

	var dash *dashboard.Poller
	if *wait {
		dash = dashboard.New(a.client, dashboard.WithLogger(a.logger), dashboard.WithOnUpdate(printSummary))
	}
	acts := a.actions(dash)

	switch len(ids) {
	case 0:
		err = acts.ScanAll(ctx)
	case 1:
		_, err = acts.ScanOne(ctx, ids[0])
	default:
		_, err = acts.ScanSelected(ctx, ids)
	}
	if err != nil {
		return silent(err)
	}
	if *wait {
		fmt.Printf("Waiting %s for the scanner...\n", a.conf.ScanCompletionWait)
		acts.Wait()
	}
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return errors.New("status takes exactly one domain id")
	}
	st, err := a.client.ScanStatus(ctx, ids[0])
	if err != nil {
		return err
	}
	printScanStatus(st)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	status := fs.String("status", "", "only VALID or INVALID domains")
	out := fs.String("o", "", "output file (server-suggested name in the current directory by default)")
	fs.Parse(args)

	tmp, err := os.CreateTemp(".", ".certwatch-export-*")
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	defer os.Remove(tmp.Name())

	name, err := a.client.ExportCSV(ctx, tmp, strings.ToUpper(*status))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	dest := *out
	if dest == "" {
		dest = filepath.Base(name)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrap(err, "save export")
	}
	color.Green("Exported to %s", dest)
	return nil
}
