package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/metrics"
	"assetrecon/internal/plugins"
	"assetrecon/internal/reconcile"
)

// Processor reconciles the reports of one sighting
type Processor interface {
	Process(ctx context.Context, reports []reconcile.SourceReport) (*reconcile.Result, error)
}

// Summary counts the outcomes of one scan
type Summary struct {
	Targets   int           `json:"targets"`
	Sightings int           `json:"sightings"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs every plugin against every target and hands each target's
// reports to the engine as one sighting
type Orchestrator struct {
	config  *config.Config
	plugins []plugins.Plugin
	engine  Processor
	metrics *metrics.Collector
	log     logrus.FieldLogger
}

// NewOrchestrator creates a new scanning orchestrator
func NewOrchestrator(cfg *config.Config, plugs []plugins.Plugin, engine Processor, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	return &Orchestrator{
		config:  cfg,
		plugins: plugs,
		engine:  engine,
		log:     log,
	}
}

// WithMetrics records plugin outcomes in m
func (o *Orchestrator) WithMetrics(m *metrics.Collector) *Orchestrator {
	o.metrics = m
	return o
}

// Targets returns the configured targets merged with the IP list file
func (o *Orchestrator) Targets() ([]plugins.Target, error) {
	targets, err := ExpandTargets(o.config.Network.Targets)
	if err != nil {
		o.log.WithError(err).Warn("Skipping invalid targets")
	}

	if o.config.Network.IPListFile != "" {
		fileTargets, err := LoadTargetsFromFile(o.config.Network.IPListFile)
		if fileTargets == nil && err != nil {
			return nil, err
		}
		if err != nil {
			o.log.WithError(err).WithField("file", o.config.Network.IPListFile).Warn("Skipping invalid targets")
		}
		targets = append(targets, fileTargets...)
	}
	return MergeTargets(targets), nil
}

// Run performs one scan of every target and waits for it to finish
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	targets, err := o.Targets()
	if err != nil {
		return Summary{}, err
	}
	summary := o.Scan(ctx, targets)
	summary.Duration = time.Since(start)

	o.log.WithFields(logrus.Fields{
		"targets":   summary.Targets,
		"created":   summary.Created,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"duration":  summary.Duration.String(),
	}).Info("Scan completed")
	return summary, nil
}

// Loop runs a scan every scan interval until ctx is done
func (o *Orchestrator) Loop(ctx context.Context) error {
	ticker := time.NewTicker(o.config.GetScanInterval())
	defer ticker.Stop()
	for {
		if _, err := o.Run(ctx); err != nil {
			o.log.WithError(err).Error("Scan failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan runs the worker pool over targets
func (o *Orchestrator) Scan(ctx context.Context, targets []plugins.Target) Summary {
	var (
		summary = Summary{Targets: len(targets)}
		mu      sync.Mutex
		wg      sync.WaitGroup
	)

	// Use a semaphore to limit concurrent sightings
	sem := make(chan struct{}, o.config.GetWorkers())

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{} // Acquire

		go func(t plugins.Target) {
			defer wg.Done()
			defer func() { <-sem }() // Release

			outcome := o.sighting(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCreated:
				summary.Created++
			case outcomeUpdated:
				summary.Updated++
			case outcomeUnchanged:
				summary.Unchanged++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeFailed:
				summary.Failed++
			}
			if outcome != outcomeSkipped {
				summary.Sightings++
			}
		}(target)
	}

	wg.Wait()
	return summary
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeUnchanged
	outcomeFailed
)

func (o *Orchestrator) sighting(ctx context.Context, target plugins.Target) outcome {
	log := o.log.WithField("target", target.Address)

	reports := o.collect(ctx, target, log)
	if len(reports) == 0 {
		log.Debug("No plugin answered")
		return outcomeSkipped
	}

	res, err := o.engine.Process(ctx, reports)
	switch {
	case errors.Is(err, reconcile.ErrInsufficientIdentity):
		log.WithError(err).Debug("Sighting has no usable identity")
		return outcomeSkipped
	case err != nil:
		log.WithError(err).Warn("Sighting failed")
		return outcomeFailed
	case res.Created:
		return outcomeCreated
	case res.Committed:
		return outcomeUpdated
	default:
		return outcomeUnchanged
	}
}

// collect runs every plugin concurrently; reports keep plugin order so
// equal-priority ties break the same way on every scan
func (o *Orchestrator) collect(ctx context.Context, target plugins.Target, log logrus.FieldLogger) []reconcile.SourceReport {
	results := make([]*reconcile.SourceReport, len(o.plugins))
	var wg sync.WaitGroup
	for i, p := range o.plugins {
		wg.Add(1)
		go func(i int, p plugins.Plugin) {
			defer wg.Done()
			report, err := p.Collect(ctx, target)
			switch {
			case errors.Is(err, plugins.ErrNoData):
				o.metrics.PluginReport(p.Name(), "no_data")
			case err != nil:
				o.metrics.PluginReport(p.Name(), "error")
				log.WithError(err).WithField("plugin", p.Name()).Warn("Plugin failed")
			default:
				o.metrics.PluginReport(p.Name(), "ok")
				if report.Source == "" {
					report.Source = p.Name()
				}
				results[i] = &report
			}
		}(i, p)
	}
	wg.Wait()

	var reports []reconcile.SourceReport
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports
}
