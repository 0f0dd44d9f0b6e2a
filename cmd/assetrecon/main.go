package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/metrics"
	"assetrecon/internal/priority"
	"assetrecon/internal/reconcile"
	"assetrecon/internal/store"
)

var (
	app = kingpin.New("assetrecon", "Multi-source inventory reconciliation engine.")

	configPath = app.Flag("config", "The configuration file (JSON or YAML).").
			Short('c').Envar("ASSETRECON_CONFIG").String()
	verbose = app.Flag("verbose", "Enable debug logging.").Short('v').Bool()
)

// deps is everything a command needs, built once from the configuration
type deps struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   store.Store
	metrics *metrics.Collector
	engine  *reconcile.Engine
	logFile io.Closer
}

func setup(ctx context.Context) (*deps, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log, logFile, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	m := metrics.NewCollector()
	engine, err := reconcile.NewEngine(reconcile.EngineOptions{
		Store:     s,
		Registry:  priority.NewRegistry(cfg.Priorities),
		Blacklist: reconcile.NewBlacklist(cfg.Blacklist),
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		s.Close()
		logFile.Close()
		return nil, err
	}
	return &deps{cfg: cfg, log: log, store: s, metrics: m, engine: engine, logFile: logFile}, nil
}

func (r *deps) Close() {
	if err := r.store.Close(); err != nil {
		r.log.WithError(err).Warn("Failed to close store")
	}
	r.logFile.Close()
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case scanCommand.FullCommand():
		err = doScan(ctx)
	case ingestCommand.FullCommand():
		err = doIngest(ctx)
	case serveCommand.FullCommand():
		err = doServe(ctx)
	case migrateCommand.FullCommand():
		err = doMigrate(ctx)
	case exportCommand.FullCommand():
		err = doExport(ctx)
	}
	kingpin.FatalIfError(err, command)
}
