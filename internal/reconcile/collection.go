package reconcile

import (
	"assetrecon/internal/assets"
)

// ComponentUpdate pairs a stored component with the report that matched it
type ComponentUpdate struct {
	Existing assets.Component
	Reported MergedComponent
}

// CollectionPlan is the outcome of reconciling one component collection
type CollectionPlan struct {
	Create []MergedComponent
	Update []ComponentUpdate
	// Retain holds stored components that were not reported this time. They
	// are kept as they are; absence from a sighting is not proof of removal.
	Retain []assets.Component
}

// ReconcileComponents matches reported components to existing ones by slot
// key. Reported components without a key are ignored. When two stored
// components share a key, the first one matches and the rest are retained.
// When two reported components share a key, the later one wins.
func ReconcileComponents(existing []assets.Component, reported []MergedComponent, slotKey SlotKeyFunc) CollectionPlan {
	var plan CollectionPlan

	latest := map[string]MergedComponent{}
	var order []string
	for _, r := range reported {
		key := slotKey(r.Values())
		if key == "" {
			continue
		}
		if _, dup := latest[key]; !dup {
			order = append(order, key)
		}
		latest[key] = r
	}

	matched := map[string]bool{}
	for _, c := range existing {
		key := c.SlotKey
		if key == "" {
			key = slotKey(c.Fields)
		}
		r, ok := latest[key]
		if !ok || key == "" || matched[key] {
			plan.Retain = append(plan.Retain, c)
			continue
		}
		matched[key] = true
		plan.Update = append(plan.Update, ComponentUpdate{Existing: c, Reported: r})
	}

	for _, key := range order {
		if !matched[key] {
			plan.Create = append(plan.Create, latest[key])
		}
	}
	return plan
}
