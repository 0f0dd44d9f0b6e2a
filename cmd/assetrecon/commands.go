package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"assetrecon/internal/api"
	"assetrecon/internal/api/handlers"
	"assetrecon/internal/assets"
	"assetrecon/internal/discovery"
	"assetrecon/internal/plugins"
	"assetrecon/internal/reconcile"
	"assetrecon/internal/store"
)

var (
	scanCommand = app.Command("scan", "Run every enabled plugin against the configured targets.")
	scanTargets = scanCommand.Arg("targets", "IP addresses or CIDR ranges, in addition to the configuration.").Strings()
	scanLoop    = scanCommand.Flag("loop", "Keep scanning every service.scan_interval.").Bool()

	ingestCommand = app.Command("ingest", "Reconcile source reports read from a JSON file.")
	ingestFile    = ingestCommand.Arg("file", "A JSON array of reports (one sighting) or an array of such arrays.").
			Required().ExistingFile()
	ingestPreview = ingestCommand.Flag("preview", "Show the outcome without writing.").Bool()

	serveCommand = app.Command("serve", "Serve the HTTP API.")
	serveListen  = serveCommand.Flag("listen", "Listen address, overrides api.listen.").String()

	migrateCommand = app.Command("migrate", "Create or upgrade the SQL schema.")

	exportCommand = app.Command("export", "Write every asset with its components to a JSON file.")
	exportFile    = exportCommand.Arg("file", "Output path.").Default("assets.json").String()
)

func doScan(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.cfg.Network.Targets = append(rt.cfg.Network.Targets, *scanTargets...)
	plugs := plugins.FromConfig(rt.cfg, rt.log)
	if len(plugs) == 0 {
		return fmt.Errorf("no plugins enabled in configuration")
	}
	names := make([]string, 0, len(plugs))
	for _, p := range plugs {
		names = append(names, p.Name())
	}
	rt.log.WithField("plugins", names).Info("Starting scan")

	o := discovery.NewOrchestrator(rt.cfg, plugs, rt.engine, rt.log).WithMetrics(rt.metrics)
	if *scanLoop {
		if err := o.Loop(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	summary, err := o.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func doIngest(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sightings, err := readSightings(*ingestFile)
	if err != nil {
		return err
	}

	results, ingestErr := ingest(ctx, rt.engine, sightings, *ingestPreview, rt.log)
	if err := printJSON(results); err != nil {
		return err
	}
	return ingestErr
}

// ingest reconciles every sighting and fails when any of them failed
func ingest(ctx context.Context, engine *reconcile.Engine, sightings [][]reconcile.SourceReport,
	preview bool, log logrus.FieldLogger) ([]*reconcile.Result, error) {
	var (
		results []*reconcile.Result
		failed  int
	)
	for i, reports := range sightings {
		var (
			res *reconcile.Result
			err error
		)
		if preview {
			res, err = engine.Preview(ctx, reports)
		} else {
			res, err = engine.Process(ctx, reports)
		}
		if err != nil {
			log.WithError(err).WithField("sighting", i).Error("Sighting failed")
			failed++
			continue
		}
		results = append(results, res)
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d sightings failed", failed, len(sightings))
	}
	return results, nil
}

// readSightings accepts either one sighting or a list of sightings
func readSightings(path string) ([][]reconcile.SourceReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var many [][]reconcile.SourceReport
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one []reconcile.SourceReport
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("failed to decode reports in %s: %w", path, err)
	}
	return [][]reconcile.SourceReport{one}, nil
}

func doServe(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	listen := rt.cfg.API.Listen
	if *serveListen != "" {
		listen = *serveListen
	}
	router := api.NewRouter(handlers.NewAssetHandler(rt.store, rt.engine, rt.log), rt.metrics, rt.log)
	return api.Serve(ctx, listen, router, rt.log)
}

func doMigrate(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sqlStore, ok := rt.store.(*store.SQLStore)
	if !ok {
		rt.log.WithField("driver", rt.cfg.Store.Driver).Info("Store has no schema, nothing to migrate")
		return nil
	}
	if err := sqlStore.Migrate(ctx); err != nil {
		return err
	}
	rt.log.WithField("driver", rt.cfg.Store.Driver).Info("Schema is up to date")
	return nil
}

func doExport(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	const page = 200
	var snapshots []assets.Snapshot
	for offset := 0; ; offset += page {
		list, total, err := rt.store.ListAssets(ctx, offset, page)
		if err != nil {
			return err
		}
		for _, a := range list {
			comps, err := rt.store.ComponentsOf(ctx, a.ID)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, assets.Snapshot{Asset: a, Components: comps})
		}
		if offset+page >= total {
			break
		}
	}

	if err := assets.ExportToJSON(snapshots, *exportFile); err != nil {
		return err
	}
	rt.log.WithFields(logrus.Fields{"assets": len(snapshots), "file": *exportFile}).Info("Export completed")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
