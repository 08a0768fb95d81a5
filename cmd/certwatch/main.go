package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/harveywai/certwatch/pkg/actions"
	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/config"
	"github.com/harveywai/certwatch/pkg/dashboard"
	"github.com/harveywai/certwatch/pkg/database"
	"github.com/harveywai/certwatch/pkg/logging"
	"github.com/harveywai/certwatch/pkg/notify"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// app is everything a subcommand needs.
type app struct {
	conf     config.Config
	logger   zerolog.Logger
	store    *session.Store
	client   *api.Client
	auth     *api.Auth
	notifier notify.Notifier
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":             {"login -u USER [-p PASS] [-remember=false]", runLogin},
	"logout":            {"logout", runLogout},
	"whoami":            {"whoami", runWhoami},
	"passwd":            {"passwd -current PASS -new PASS", runPasswd},
	"summary":           {"summary", runSummary},
	"watch":             {"watch [-interval 30s]", runWatch},
	"list":              {"list [-page N] [-sort COL] [-order asc|desc] [-status VALID|INVALID] [-expiring] [-search TEXT] [-filter NAME]", runList},
	"add":               {"add [-notes TEXT] DOMAIN", runAdd},
	"bulk-add":          {"bulk-add [-file PATH]  (one domain per line, stdin by default)", runBulkAdd},
	"delete":            {"delete ID", runDelete},
	"bulk-delete":       {"bulk-delete ID...", runBulkDelete},
	"bulk-delete-names": {"bulk-delete-names [-file PATH]  (one domain per line, stdin by default)", runBulkDeleteNames},
	"scan":              {"scan [-wait] [ID...]  (all domains when no ID is given)", runScan},
	"status":            {"status ID", runStatus},
	"export":            {"export [-status VALID|INVALID] [-o PATH]", runExport},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: certwatch [-config FILE] [-yes] COMMAND [ARGS]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	confFile := flag.String("config", "", "path to YAML config file")
	assumeYes := flag.Bool("yes", false, "answer yes to every confirmation")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		color.Red("unknown command %q", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	conf, err := config.Load(*confFile)
	if err != nil {
		color.Red("failed to load config: %s", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(os.Stderr, conf.LogLevel, true)

	a, err := newApp(conf, logger, notify.NewTerminal(os.Stdout, os.Stdin, *assumeYes))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		if !errors.Is(err, actions.ErrCancelled) && !alreadyReported(err) {
			color.Red("%s", api.DetailOf(err, err.Error()))
		}
		os.Exit(1)
	}
}

func newApp(conf config.Config, logger zerolog.Logger, notifier notify.Notifier) (*app, error) {
	db, err := database.Open(conf.SessionDB)
	if err != nil {
		return nil, err
	}
	durable, err := database.NewKV(db)
	if err != nil {
		return nil, err
	}
	store := session.New(durable, session.NewMemoryKV(), logger)

	fetch := authfetch.New(store,
		authfetch.WithLogger(logger),
		authfetch.WithUnauthorizedHandler(func(reason error) {
			color.Red("%s. Run `certwatch login` to sign in.", reason)
		}),
	)
	client := api.NewClient(conf.APIBaseURL, fetch, nil)

	return &app{
		conf:     conf,
		logger:   logger,
		store:    store,
		client:   client,
		auth:     api.NewAuth(client, store),
		notifier: notifier,
	}, nil
}

// actions wires the action runner. Without views nothing is refreshed.
func (a *app) actions(dash *dashboard.Poller) *actions.Actions {
	var refresher actions.Refresher
	if dash != nil {
		refresher = dash
	}
	return actions.New(a.client, a.notifier, refresher, nil,
		actions.WithScanWait(a.conf.ScanCompletionWait),
		actions.WithLogger(a.logger),
	)
}

func (a *app) thresholds() render.Thresholds {
	return render.Thresholds{UrgentDays: a.conf.UrgentDays, WarningDays: a.conf.WarningDays}
}

// reported marks an error the user has already been shown.
type reported struct {
	error
}

func (r reported) Unwrap() error {
	return r.error
}

func silent(err error) error {
	if err == nil {
		return nil
	}
	return reported{err}
}

func alreadyReported(err error) bool {
	var r reported
	return errors.As(err, &r) || api.IsUnauthorized(err)
}
