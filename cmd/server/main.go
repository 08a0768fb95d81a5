package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harveywai/certwatch/pkg/actions"
	"github.com/harveywai/certwatch/pkg/api"
	"github.com/harveywai/certwatch/pkg/apitest"
	"github.com/harveywai/certwatch/pkg/authfetch"
	"github.com/harveywai/certwatch/pkg/config"
	"github.com/harveywai/certwatch/pkg/dashboard"
	"github.com/harveywai/certwatch/pkg/database"
	"github.com/harveywai/certwatch/pkg/listing"
	"github.com/harveywai/certwatch/pkg/logging"
	"github.com/harveywai/certwatch/pkg/notify"
	"github.com/harveywai/certwatch/pkg/render"
	"github.com/harveywai/certwatch/pkg/session"
	"github.com/harveywai/certwatch/pkg/web"
	"github.com/rs/zerolog"
)

func main() {
	confFile := flag.String("config", "", "path to YAML config file")
	demo := flag.Bool("demo", false, "run against an in-process demo backend")
	probe := flag.Bool("probe", false, "with -demo, complete scans with real TLS handshakes")
	pretty := flag.Bool("pretty", true, "human readable logs")
	flag.Parse()

	conf, err := config.Load(*confFile)
	if err != nil {
		logger := logging.New("info", true)
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(conf.LogLevel, *pretty)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *demo {
		base, err := startDemoBackend(logger, *probe)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start demo backend")
		}
		conf.APIBaseURL = base
	}

	// Initialize the durable session tier.
	if err := database.Init(conf.SessionDB); err != nil {
		logger.Fatal().Err(err).Str("path", conf.SessionDB).Msg("failed to initialize session database")
	}
	durable, err := database.NewKV(nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	store := session.New(durable, session.NewMemoryKV(), logger)

	var srv *web.Server
	fetch := authfetch.New(store,
		authfetch.WithLogger(logger),
		authfetch.WithUnauthorizedHandler(func(reason error) { srv.OnUnauthorized(reason) }),
	)
	client := api.NewClient(conf.APIBaseURL, fetch, nil)

	list := listing.New(client, listing.WithPerPage(conf.PerPage), listing.WithLogger(logger))
	poller := dashboard.New(client, dashboard.WithInterval(conf.DashboardRefresh), dashboard.WithLogger(logger))
	notes := notify.NewRecorder(true)
	acts := actions.New(client, notes, poller, list,
		actions.WithScanWait(conf.ScanCompletionWait),
		actions.WithLogger(logger),
	)

	srv = web.New(ctx, web.Deps{
		Client:  client,
		Auth:    api.NewAuth(client, store),
		Session: store,
		List:    list,
		Poller:  poller,
		Actions: acts,
		Notes:   notes,
	}, web.Options{
		Thresholds:  render.Thresholds{UrgentDays: conf.UrgentDays, WarningDays: conf.WarningDays},
		HistorySize: conf.HistorySize,
		Logger:      logger,
	})

	httpSrv := &http.Server{Addr: conf.Listen, Handler: srv.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("listen", conf.Listen).Str("api", conf.APIBaseURL).Msg("dashboard started")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("dashboard server failed")
	}
}

// startDemoBackend serves a seeded fake API on a loopback port and returns
// its base URL. With probe set, triggered scans dial the real hosts.
func startDemoBackend(logger zerolog.Logger, probe bool) (string, error) {
	b, err := apitest.New()
	if err != nil {
		return "", err
	}
	if probe {
		b.SetProber(apitest.TLSProbe, logger.With().Str("component", "prober").Logger())
	}
	if err := b.SeedDemo(); err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go http.Serve(ln, b.Handler())

	base := "http://" + ln.Addr().String() + "/api"
	logger.Info().Str("api", base).Str("user", apitest.AdminUser).Str("password", apitest.AdminPassword).Msg("demo backend running")
	return base, nil
}
