// Package main provides the test-execution core service: it loads an
// instrument registry and a test plan, drives the plan through the Session
// Engine, and writes a CSV report on completion.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webpdtool/testcore/internal/config"
	"github.com/webpdtool/testcore/internal/eventbus"
	"github.com/webpdtool/testcore/internal/instrument"
	"github.com/webpdtool/testcore/internal/instrument/drivers"
	"github.com/webpdtool/testcore/internal/measurement"
	"github.com/webpdtool/testcore/internal/report"
	"github.com/webpdtool/testcore/internal/resultstore"
	"github.com/webpdtool/testcore/internal/session"
	"github.com/webpdtool/testcore/internal/storage"
	"github.com/webpdtool/testcore/internal/template"
	"github.com/webpdtool/testcore/internal/testplan"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "testcore"
)

func main() {
	var (
		project     = flag.String("project", "", "project name")
		station     = flag.String("station", "", "station name")
		planName    = flag.String("plan", "", "test plan name")
		versionFlag = flag.Bool("version", false, "show version information")
	)

	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting test-execution core", slog.String("service", name), slog.String("version", version))

	if *project == "" || *station == "" || *planName == "" {
		logger.Error("missing required flags", slog.String("usage", "-project -station -plan"))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := instrument.NewRegistry()
	registerDriverFactories(registry)

	if err := registry.Load(config.InstrumentConfigPath()); err != nil {
		logger.Error("instrument registry load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poolCfg := config.LoadPoolConfig()
	pool := instrument.NewPool(registry, poolCfg.IdleTimeout)

	defer pool.Close()

	catalog := template.New()
	dispatcher := measurement.NewDispatcher(catalog)

	scriptsCfg := config.LoadScriptsConfig()
	deps := measurement.Deps{Pool: pool, ScriptsDir: scriptsCfg.Dir}

	planRepo := testplan.NewFileRepository(".")

	plan, err := planRepo.GetPlan(ctx, *project, *station, *planName)
	if err != nil {
		logger.Error("plan load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := plan.Validate(); err != nil {
		logger.Error("plan invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appender, recorder, closeStorage := buildResultStore(logger)
	defer closeStorage()

	engineCfg := config.LoadSessionEngineConfig()

	var publisher session.ProgressPublisher

	if len(engineCfg.KafkaBrokers) > 0 {
		kafkaPublisher := eventbus.NewKafkaProgressPublisher(engineCfg.KafkaBrokers)
		defer kafkaPublisher.Close()

		publisher = kafkaPublisher
	}

	sess := session.New(*plan, dispatcher, catalog, deps, appender, publisher, recorder, session.ContinueOnFailure)

	logger.Info("session created", slog.String("session_id", sess.ID), slog.String("plan", plan.Name))

	go logProgress(logger, sess)

	runErr := sess.Start(ctx)

	reportCfg := config.LoadReportConfig()
	writer := report.NewWriter(report.Config{BaseDir: reportCfg.BaseDir, AutoSave: reportCfg.AutoSave, MaxAgeDays: reportCfg.MaxAgeDays})

	results, err := appender.All(ctx, sess.ID)
	if err != nil {
		logger.Error("result read-back for report failed", slog.String("error", err.Error()))
	} else {
		rows := report.RowsFrom(plan.Items, results)

		path, writeErr := writer.Write(report.SessionInfo{SessionID: sess.ID, Project: plan.Project, Station: plan.Station}, rows, time.Now())
		if writeErr != nil {
			logger.Error("report write failed", slog.String("error", writeErr.Error()))
		} else if path != "" {
			logger.Info("report written", slog.String("path", path))
		}
	}

	if runErr != nil {
		logger.Error("session did not complete", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("test-execution core stopped")
}

// registerDriverFactories wires every concrete Instrument Driver (C2) the
// corpus supports into the registry, keyed by instrument type (spec §4.4).
func registerDriverFactories(registry *instrument.Registry) {
	registry.RegisterFactory("console", drivers.NewConsoleDriver)
	registry.RegisterFactory("comport", drivers.NewComPortDriver(nil))
	registry.RegisterFactory("tcpip", drivers.NewTCPIPDriver)
	registry.RegisterFactory("daq", drivers.NewDAQDriver)
	registry.RegisterFactory("powersupply", drivers.NewPowerSupplyDriver)
	registry.RegisterFactory("relay", drivers.NewRelayDriver)
	registry.RegisterFactory("ssh", drivers.NewSSHDriver)
}

// buildResultStore wires the durable Result Store and session recorder when
// DATABASE_URL is set, falling back to an in-memory store for single-run or
// offline use (spec §9 Open Question: persistence is an external
// collaborator, not mandatory for every deployment).
func buildResultStore(logger *slog.Logger) (resultstore.Store, session.Recorder, func()) {
	dbCfg := storage.LoadConfig()
	if err := dbCfg.Validate(); err != nil {
		logger.Warn("no database configured, using in-memory result store", slog.String("reason", err.Error()))

		return resultstore.NewInMemoryStore(), nil, func() {}
	}

	conn, err := storage.NewConnection(dbCfg)
	if err != nil {
		logger.Error("database connection failed, falling back to in-memory result store", slog.String("error", err.Error()))

		return resultstore.NewInMemoryStore(), nil, func() {}
	}

	logger.Info("connected to result store database", slog.String("database_url", dbCfg.MaskDatabaseURL()))

	return resultstore.NewPostgresStore(conn), session.NewPostgresRecorder(conn), func() { _ = conn.Close() }
}

func logProgress(logger *slog.Logger, sess *session.Session) {
	for event := range sess.Progress() {
		if event.Result == nil {
			continue
		}

		logger.Info("item finished",
			slog.String("session_id", event.SessionID),
			slog.Int("item_no", event.ItemNo),
			slog.String("item_name", event.ItemName),
			slog.String("outcome", string(event.Result.Outcome)),
		)
	}
}
