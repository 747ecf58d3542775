// Actifixd is the Actifix error-tracking and remediation daemon: it
// exposes the HTTP ingestion/query API and a CLI for operating the
// ticket pipeline, health checks, and module registry directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gmanldn/actifix/internal/actifixpath"
	"github.com/gmanldn/actifix/internal/aiprovider"
	"github.com/gmanldn/actifix/internal/completionhooks"
	"github.com/gmanldn/actifix/internal/config"
	"github.com/gmanldn/actifix/internal/diagnostics"
	"github.com/gmanldn/actifix/internal/dispatch"
	"github.com/gmanldn/actifix/internal/fallbackqueue"
	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/httpapi"
	"github.com/gmanldn/actifix/internal/ingest"
	"github.com/gmanldn/actifix/internal/lifecycle"
	"github.com/gmanldn/actifix/internal/modulestatus"
	"github.com/gmanldn/actifix/internal/obslog"
	"github.com/gmanldn/actifix/internal/quarantine"
	"github.com/gmanldn/actifix/internal/ratelimiter"
	"github.com/gmanldn/actifix/internal/throttle"
	"github.com/gmanldn/actifix/internal/ticketstore"
	"github.com/gmanldn/actifix/internal/version"
	"github.com/gmanldn/actifix/internal/webhook"
)

// app bundles every opened handle a CLI command or the HTTP server
// needs, the way lifecycle.Bootstrap bundles C15's.
type app struct {
	boot          *lifecycle.Bootstrap
	cfg           config.Config
	log           *logrus.Entry
	throttler     *throttle.Throttler
	limiter       *ratelimiter.Limiter
	pipeline      *ingest.Pipeline
	checker       *health.Checker
	registry      *aiprovider.Registry
	dispatcher    *dispatch.Dispatcher
	modules       *modulestatus.Store
	quarantine    *quarantine.Store
	diagnostics   *diagnostics.Exporter
	completionRun *completionhooks.Runner
	webhookSender *webhook.Sender
	selfID        string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	a, err := bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "actifixd: bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := lifecycle.Shutdown(a.boot); err != nil {
			fmt.Fprintf(os.Stderr, "actifixd: shutdown error: %v\n", err)
		}
	}()

	var runErr error
	switch cmd {
	case "init":
		runErr = cmdInit(a)
	case "health":
		runErr = cmdHealth(a)
	case "status":
		runErr = cmdStatus(a)
	case "metrics":
		runErr = cmdMetrics(a)
	case "record":
		runErr = cmdRecord(a, args)
	case "process":
		runErr = cmdProcess(a, args)
	case "stats":
		runErr = cmdStats(a)
	case "quarantine":
		runErr = cmdQuarantine(a, args)
	case "diagnostics":
		runErr = cmdDiagnostics(a, args)
	case "logs":
		runErr = cmdLogs(a, args)
	case "config":
		runErr = cmdConfig(a, args)
	case "queue":
		runErr = cmdQueue(a, args)
	case "tickets":
		runErr = cmdTickets(a, args)
	case "modules":
		runErr = cmdModules(a, args)
	case "doctor":
		runErr = cmdDoctor(a)
	case "repair":
		runErr = cmdRepair(a, args)
	case "serve":
		runErr = cmdServe(a, args)
	case "version":
		fmt.Printf("actifixd %s (commit %s)\n", version.Version, version.Commit)
		return
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "actifixd: %v\n", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `actifixd <command> [args]

Commands:
  init                        Bootstrap the on-disk layout and exit
  health                      Print the current health snapshot
  status                      Print ticket counts by status/priority
  metrics                     Print a Prometheus-style metrics summary
  record <type> <msg> <src>   Record an error ticket [--priority Pn]
  process [--max-tickets N]   Dispatch up to N open tickets
  stats                       Print ticket store statistics
  quarantine list             List quarantined content
  diagnostics summary|export  Print or export a diagnostics bundle
  logs tail [--limit N] ...   Tail the event log
  config diff                 Show config overrides vs defaults
  queue replay                Replay the fallback queue
  tickets cleanup              Delete old completed tickets [--execute]
  modules <subcommand>         Manage the module registry
  doctor                       Run startup diagnostics
  repair [--execute]           Vacuum/checkpoint the database
  serve [--addr :PORT]         Run the HTTP API server
  version                      Print build version`)
}

func bootstrap() (*app, error) {
	cfg, errs := config.Load(false)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "actifixd: config warning: %v\n", err)
	}

	boot, err := lifecycle.Startup(actifixpath.Overrides{}, fallbackqueue.DefaultConfig())
	if err != nil {
		return nil, err
	}

	logger := obslog.New(obslog.Config{Level: "info", Format: "text", Output: "stdout"})
	logEntry := obslog.Component(logger, "actifixd")

	throttler := throttle.New(throttle.Config{
		MaxP2PerHour:        cfg.Throttle.MaxP2PerHour,
		MaxP3Per4Hours:      cfg.Throttle.MaxP3Per4Hours,
		MaxP4PerDay:         cfg.Throttle.MaxP4PerDay,
		EmergencyThreshold:  cfg.Throttle.EmergencyThreshold,
		EmergencyWindowMins: cfg.Throttle.EmergencyWindowMins,
		Enabled:             true,
	}, boot.DB.Conn())

	limiter := ratelimiter.New(boot.DB.Conn(), ratelimiter.DefaultLimits())

	ingestCfg := ingest.DefaultConfig()
	ingestCfg.EnforceRaiseAF = cfg.EnforceRaiseAF
	ingestCfg.CaptureEnabled = cfg.CaptureEnabled
	ingestCfg.MaxMessageLength = cfg.MaxMessageLength
	ingestCfg.ProjectRoot = boot.Paths.ProjectRoot
	pipeline := ingest.New(ingestCfg, boot.Store, boot.Queue, boot.Events, throttler)

	checker := health.New(boot.Store, health.DefaultSLAHours(), boot.Paths.StateDir, boot.Paths.DataDir, boot.Paths.CoreArtifacts(), nil)

	registry := aiprovider.NewRegistry(cfg.AIAPIKey, cfg.AIModel, cfg.AIAPIKey, cfg.AIModel, "", "", limiter)

	selfID := selfIdentity()
	dispatchCfg := dispatch.DefaultConfig()
	dispatchCfg.LeaseDuration = time.Duration(cfg.DefaultLeaseSeconds) * time.Second
	dispatcher := dispatch.New(dispatchCfg, boot.Store, registry, boot.Events, logEntry, selfID)

	modules := modulestatus.New(boot.Paths.StateDir)
	quarantineStore := quarantine.New(boot.Paths.QuarantineDir, boot.Events)
	diagExporter := diagnostics.New(boot.Store, checker, boot.Events, cfg, boot.Paths.LogsDir, boot.Paths.DataDir)
	hookRunner := completionhooks.New(cfg.CompletionHookScripts, boot.Events)
	webhookSender := webhook.New(cfg.WebhookURLs, boot.Events)

	dispatcher.AddCompletionHook(func(t *ticketstore.Ticket) {
		webhookSender.Send(context.Background(), webhook.EventTicketCompleted, t)
	})
	dispatcher.AddCompletionHook(func(t *ticketstore.Ticket) {
		hookRunner.Run(context.Background(), t)
	})

	pipeline.OnTicketCreated(func(t *ticketstore.Ticket) {
		webhookSender.Send(context.Background(), webhook.EventTicketCreated, t)
	})

	a := &app{
		boot:          boot,
		cfg:           cfg,
		log:           logEntry,
		throttler:     throttler,
		limiter:       limiter,
		pipeline:      pipeline,
		checker:       checker,
		registry:      registry,
		dispatcher:    dispatcher,
		modules:       modules,
		quarantine:    quarantineStore,
		diagnostics:   diagExporter,
		completionRun: hookRunner,
		webhookSender: webhookSender,
		selfID:        selfID,
	}
	return a, nil
}

func selfIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func cmdServe(a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8090", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := httpapi.New(httpapi.Deps{
		Store:      a.boot.Store,
		Events:     a.boot.Events,
		Checker:    a.checker,
		Pipeline:   a.pipeline,
		Dispatcher: a.dispatcher,
		Registry:   a.registry,
		Modules:    a.modules,
		Config:     a.cfg,
		Log:        a.log,
		DBSizeFn: func() int64 {
			size, _ := a.boot.DB.SizeBytes()
			return size
		},
	})

	httpServer := &http.Server{Addr: *addr, Handler: srv.Router(a.cfg.CORSOrigins)}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.log.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	a.log.WithField("addr", *addr).Info("actifixd serving")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		return err
	}
	return nil
}
