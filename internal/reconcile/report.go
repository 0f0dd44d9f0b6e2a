// Package reconcile turns independent discovery reports about one physical
// asset into a single guarded update of the persisted record.
package reconcile

import (
	"sort"

	"assetrecon/internal/assets"
)

// SourceReport is one plugin's raw observations for one sighting
type SourceReport struct {
	Source     string                 `json:"source"`
	Fields     map[string]interface{} `json:"fields"`
	Components []ComponentReport      `json:"components,omitempty"`
}

// ComponentReport is one sub-component observation. SlotKey tags the report
// with its stable identity when the plugin knows it separately from Fields.
type ComponentReport struct {
	Kind    assets.ComponentKind   `json:"kind"`
	SlotKey string                 `json:"slot_key,omitempty"`
	Fields  map[string]interface{} `json:"fields"`
}

// Entry is the winning value of one field with its provenance
type Entry struct {
	Value    string `json:"value"`
	Source   string `json:"source"`
	Priority int    `json:"priority"`
}

// MergedRecord is the best value per field across all reports of a sighting
type MergedRecord struct {
	Fields     map[string]Entry  `json:"fields"`
	Components []MergedComponent `json:"components,omitempty"`
}

// MergedComponent is the merged view of one component slot
type MergedComponent struct {
	Kind    assets.ComponentKind `json:"kind"`
	SlotKey string               `json:"slot_key"`
	Fields  map[string]Entry     `json:"fields"`
}

// Value returns the merged value of field, or ""
func (r MergedRecord) Value(field string) string {
	return r.Fields[field].Value
}

// ComponentsOfKind returns the merged components of kind in slot key order
func (r MergedRecord) ComponentsOfKind(kind assets.ComponentKind) []MergedComponent {
	var out []MergedComponent
	for _, c := range r.Components {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Values flattens the entries into a plain field map
func (c MergedComponent) Values() map[string]string {
	return values(c.Fields)
}

func values(entries map[string]Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for k, e := range entries {
		out[k] = e.Value
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldChoice is a human override of one asset field. A nil Value clears the field.
type FieldChoice struct {
	Field       string      `json:"field"`
	Value       interface{} `json:"value"`
	SourceLabel string      `json:"source_label,omitempty"`
}
