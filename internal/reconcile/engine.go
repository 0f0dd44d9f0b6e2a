package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"assetrecon/internal/assets"
	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/metrics"
	"assetrecon/internal/priority"
	"assetrecon/internal/store"
)

// maxAttempts bounds retries of a sighting that lost an optimistic version race
const maxAttempts = 3

// EngineOptions configures an Engine. Store and Registry are required.
type EngineOptions struct {
	Store     store.Store
	Registry  *priority.Registry
	Blacklist *Blacklist
	Logger    logrus.FieldLogger
	Metrics   *metrics.Collector
}

// Engine runs the full pipeline for one sighting: merge, resolve, diff,
// guard, reconcile components and commit.
type Engine struct {
	store    store.Store
	registry *priority.Registry
	resolver *Resolver
	log      logrus.FieldLogger
	metrics  *metrics.Collector
	locks    *keyedMutex
}

// NewEngine creates a new engine
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	if opts.Registry == nil {
		return nil, errors.New("engine requires a priority registry")
	}
	if opts.Blacklist == nil {
		opts.Blacklist = NewBlacklist(config.Blacklist{})
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Engine{
		store:    opts.Store,
		registry: opts.Registry,
		resolver: NewResolver(opts.Store, opts.Blacklist),
		log:      opts.Logger,
		metrics:  opts.Metrics,
		locks:    newKeyedMutex(),
	}, nil
}

// ComponentResult describes what happened to one component slot
type ComponentResult struct {
	Kind        assets.ComponentKind `json:"kind"`
	SlotKey     string               `json:"slot_key"`
	ComponentID uuid.UUID            `json:"component_id"`
	Created     bool                 `json:"created"`
	Diff        Diff                 `json:"diff"`
	Accepted    []Decision           `json:"accepted,omitempty"`
	Rejected    []Decision           `json:"rejected,omitempty"`
	Confirmed   []Decision           `json:"confirmed,omitempty"`
}

// Result describes the outcome of one sighting or override
type Result struct {
	AssetID    uuid.UUID         `json:"asset_id"`
	Created    bool              `json:"created"`
	Committed  bool              `json:"committed"`
	Keys       IdentityKeys      `json:"identity"`
	Diff       Diff              `json:"diff"`
	Accepted   []Decision        `json:"accepted,omitempty"`
	Rejected   []Decision        `json:"rejected,omitempty"`
	Confirmed  []Decision        `json:"confirmed,omitempty"`
	Components []ComponentResult `json:"components,omitempty"`
	// Retained counts stored components not seen in this sighting
	Retained int `json:"retained"`
	// Invalid lists reported values dropped by validation
	Invalid []*InvalidFieldValueError `json:"invalid,omitempty"`
	// DroppedComponents lists ethernet slots dropped for a blacklisted MAC
	DroppedComponents []string `json:"dropped_components,omitempty"`
}

func (r *Result) counts() (accepted, rejected, confirmed int) {
	accepted, rejected, confirmed = len(r.Accepted), len(r.Rejected), len(r.Confirmed)
	for _, c := range r.Components {
		accepted += len(c.Accepted)
		rejected += len(c.Rejected)
		confirmed += len(c.Confirmed)
	}
	return
}

// Process reconciles the reports of one sighting into the inventory. Nothing
// is written when the sighting fails with an identity error; rejected field
// writes are reported in the result, not as errors.
func (e *Engine) Process(ctx context.Context, reports []SourceReport) (*Result, error) {
	done := e.metrics.Timer()
	defer done()

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = e.run(ctx, reports, true)
		if !errors.Is(err, store.ErrStaleAsset) {
			break
		}
		e.log.WithField("attempt", attempt).Warn("Asset changed concurrently, retrying sighting")
	}
	e.record(res, err)
	return res, err
}

// Preview runs the pipeline without writing and returns what Process would do
func (e *Engine) Preview(ctx context.Context, reports []SourceReport) (*Result, error) {
	return e.run(ctx, reports, false)
}

func (e *Engine) record(res *Result, err error) {
	var conflict *IdentityConflictError
	var insufficient *InsufficientIdentityError
	switch {
	case errors.As(err, &conflict):
		e.metrics.Sighting("conflict")
	case errors.As(err, &insufficient):
		e.metrics.Sighting("insufficient_identity")
	case err != nil:
		e.metrics.Sighting("error")
	case res.Created:
		e.metrics.Sighting("created")
	case res.Committed:
		e.metrics.Sighting("updated")
	default:
		e.metrics.Sighting("unchanged")
	}
	if res != nil {
		e.metrics.Decisions(res.counts())
	}
}

func sources(reports []SourceReport) string {
	names := make([]string, 0, len(reports))
	for _, r := range reports {
		names = append(names, r.Source)
	}
	return strings.Join(names, ",")
}

func (e *Engine) run(ctx context.Context, reports []SourceReport, commit bool) (*Result, error) {
	log := e.log.WithField("sources", sources(reports))

	rec, invalid := Merge(reports, e.registry)
	for _, inv := range invalid {
		log.WithError(inv).Warn("Dropping invalid field value")
	}
	rec, dropped := FilterComponents(rec, e.resolver.Blacklist())
	if len(dropped) > 0 {
		log.WithField("macs", dropped).Info("Ignoring network interfaces with blacklisted MAC addresses")
	}

	res := &Result{Invalid: invalid, DroppedComponents: dropped}
	keys := ExtractIdentity(rec, e.resolver.Blacklist())
	res.Keys = keys

	unlockKeys := e.locks.Lock(keys.LockKeys())
	defer unlockKeys()

	resolution, err := e.resolver.ResolveKeys(ctx, rec, keys)
	if err != nil {
		log.WithError(err).Warn("Cannot resolve sighting identity")
		return res, err
	}

	var (
		asset    assets.Asset
		existing []assets.Component
		current  map[string]string
	)
	if resolution.Status == Found {
		unlockAsset := e.locks.Lock([]string{"asset:" + resolution.Asset.ID.String()})
		defer unlockAsset()

		// re-read under the asset lock; the resolver's copy may be outdated
		asset, err = e.store.GetAsset(ctx, resolution.Asset.ID)
		if err != nil {
			return res, fmt.Errorf("failed to load asset %s: %w", resolution.Asset.ID, err)
		}
		existing, err = e.store.ComponentsOf(ctx, asset.ID)
		if err != nil {
			return res, fmt.Errorf("failed to load components of %s: %w", asset.ID, err)
		}
		current = asset.Fields
		if current == nil {
			current = map[string]string{}
		}
	} else {
		asset = assets.NewAsset()
		res.Created = true
	}

	res.Diff = DiffFields(rec.Fields, current)
	outcome := ApplyGuard(res.Diff, asset.Fields, asset.Ledger)
	res.Accepted, res.Rejected, res.Confirmed = outcome.Accepted, outcome.Rejected, outcome.Confirmed
	asset.Fields, asset.Ledger = outcome.Fields, outcome.Ledger
	for _, r := range outcome.Rejected {
		log.WithFields(logrus.Fields{
			"field":           r.Field,
			"source":          r.Source,
			"priority":        r.Priority,
			"ledger_priority": r.LedgerPriority,
		}).Debug("Field write rejected by save priority")
	}

	cs := &store.Changeset{Asset: asset, Create: res.Created}
	for _, kind := range assets.Kinds {
		var stored []assets.Component
		for _, c := range existing {
			if c.Kind == kind {
				stored = append(stored, c)
			}
		}
		plan := ReconcileComponents(stored, rec.ComponentsOfKind(kind), SlotKeyFor(kind))
		res.Retained += len(plan.Retain)

		for _, mc := range plan.Create {
			comp := assets.NewComponent(asset.ID, kind, mc.SlotKey)
			cr := applyComponent(&comp, mc, nil)
			cr.Created = true
			res.Components = append(res.Components, cr)
			cs.CreateComponents = append(cs.CreateComponents, comp)
		}
		for _, u := range plan.Update {
			comp := u.Existing.Clone()
			cr := applyComponent(&comp, u.Reported, comp.Fields)
			res.Components = append(res.Components, cr)
			if len(cr.Accepted) > 0 || len(cr.Confirmed) > 0 {
				cs.UpdateComponents = append(cs.UpdateComponents, comp)
			}
		}
	}

	if res.Created {
		res.AssetID = asset.ID
	} else {
		res.AssetID = resolution.Asset.ID
	}
	if !commit {
		if res.Created {
			res.AssetID = uuid.Nil
		}
		return res, nil
	}

	if !res.Created && !outcome.Changed() && len(cs.CreateComponents) == 0 && len(cs.UpdateComponents) == 0 {
		log.WithField("asset_id", asset.ID).Debug("Sighting changed nothing")
		return res, nil
	}
	if err := e.store.Commit(ctx, cs); err != nil {
		return res, fmt.Errorf("failed to commit asset %s: %w", asset.ID, err)
	}
	res.Committed = true

	a, r, c := res.counts()
	log.WithFields(logrus.Fields{
		"asset_id":  asset.ID,
		"created":   res.Created,
		"accepted":  a,
		"rejected":  r,
		"confirmed": c,
	}).Info("Sighting reconciled")
	return res, nil
}

func applyComponent(comp *assets.Component, mc MergedComponent, current map[string]string) ComponentResult {
	d := DiffFields(mc.Fields, current)
	outcome := ApplyGuard(d, comp.Fields, comp.Ledger)
	comp.Fields, comp.Ledger = outcome.Fields, outcome.Ledger
	return ComponentResult{
		Kind:        comp.Kind,
		SlotKey:     comp.SlotKey,
		ComponentID: comp.ID,
		Diff:        d,
		Accepted:    outcome.Accepted,
		Rejected:    outcome.Rejected,
		Confirmed:   outcome.Confirmed,
	}
}

// Override applies human choices to an asset at the manual priority. A nil
// value clears the field. Overrides of serial number or barcode that would
// collide with another asset fail with an *IdentityConflictError.
func (e *Engine) Override(ctx context.Context, assetID uuid.UUID, choices []FieldChoice) (*Result, error) {
	if len(choices) == 0 {
		return nil, ErrEmptyOverride
	}
	manual := e.registry.ManualPriority()

	unlock := e.locks.Lock([]string{"asset:" + assetID.String()})
	defer unlock()

	asset, err := e.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	merged := map[string]Entry{}
	var removals []FieldChange
	for _, choice := range choices {
		source := priority.ManualSource
		if choice.SourceLabel != "" {
			source += ":" + choice.SourceLabel
		}
		if choice.Value == nil {
			if old, ok := asset.Fields[choice.Field]; ok {
				removals = append(removals, Removal(choice.Field, old, source, manual))
			}
			continue
		}
		value, ok, reason := NormalizeValue(choice.Field, choice.Value)
		if reason == "" && !ok {
			reason = "empty value; use null to clear a field"
		}
		if reason != "" {
			return nil, &InvalidFieldValueError{Source: source, Field: choice.Field, Value: choice.Value, Reason: reason}
		}
		merged[choice.Field] = Entry{Value: value, Source: source, Priority: manual}
	}

	if err := e.checkOverrideIdentity(ctx, assetID, merged); err != nil {
		return nil, err
	}

	d := DiffFields(merged, asset.Fields)
	d.Changes = append(d.Changes, removals...)
	outcome := ApplyGuard(d, asset.Fields, asset.Ledger)
	asset.Fields, asset.Ledger = outcome.Fields, outcome.Ledger

	res := &Result{
		AssetID:   assetID,
		Diff:      d,
		Accepted:  outcome.Accepted,
		Rejected:  outcome.Rejected,
		Confirmed: outcome.Confirmed,
	}
	if !outcome.Changed() {
		return res, nil
	}
	if err := e.store.Commit(ctx, &store.Changeset{Asset: asset}); err != nil {
		return res, fmt.Errorf("failed to commit override of %s: %w", assetID, err)
	}
	res.Committed = true
	e.log.WithFields(logrus.Fields{"asset_id": assetID, "accepted": len(res.Accepted)}).Info("Manual override applied")
	return res, nil
}

func (e *Engine) checkOverrideIdentity(ctx context.Context, assetID uuid.UUID, merged map[string]Entry) error {
	conflict := &IdentityConflictError{Keys: map[string][]uuid.UUID{}, AssetIDs: []uuid.UUID{assetID}}
	check := func(key string, found []assets.Asset, err error) error {
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}
		for _, a := range found {
			if a.ID != assetID {
				conflict.Keys[key] = append(conflict.Keys[key], a.ID)
				conflict.AssetIDs = append(conflict.AssetIDs, a.ID)
			}
		}
		return nil
	}
	if sn, ok := merged[assets.FieldSerialNumber]; ok {
		found, err := e.store.FindBySerial(ctx, sn.Value)
		if err := check("serial:"+sn.Value, found, err); err != nil {
			return err
		}
	}
	if b, ok := merged[assets.FieldBarcode]; ok {
		found, err := e.store.FindByBarcode(ctx, b.Value)
		if err := check("barcode:"+b.Value, found, err); err != nil {
			return err
		}
	}
	if len(conflict.AssetIDs) > 1 {
		return conflict
	}
	return nil
}
