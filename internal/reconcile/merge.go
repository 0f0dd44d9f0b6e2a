package reconcile

import (
	"sort"

	"assetrecon/internal/assets"
)

// PriorityLookup answers how much a source is trusted for a field
type PriorityLookup interface {
	PriorityOf(source, field string) int
}

// Merge collapses the reports of one sighting into a MergedRecord. For every
// field the value from the highest-priority source wins; on a tie the report
// that comes later in reports wins. Invalid values are dropped and returned
// alongside the record. Merge never touches storage.
func Merge(reports []SourceReport, lookup PriorityLookup) (MergedRecord, []*InvalidFieldValueError) {
	rec := MergedRecord{Fields: map[string]Entry{}}
	var invalid []*InvalidFieldValueError

	type slot struct {
		kind assets.ComponentKind
		key  string
	}
	groups := map[slot]map[string]Entry{}

	for _, report := range reports {
		for _, field := range sortedKeys(report.Fields) {
			raw := report.Fields[field]
			value, ok, reason := NormalizeValue(field, raw)
			if reason != "" {
				invalid = append(invalid, &InvalidFieldValueError{Source: report.Source, Field: field, Value: raw, Reason: reason})
				continue
			}
			if !ok {
				continue
			}
			offer(rec.Fields, field, Entry{Value: value, Source: report.Source, Priority: lookup.PriorityOf(report.Source, field)})
		}

		for _, comp := range report.Components {
			if !comp.Kind.Valid() {
				invalid = append(invalid, &InvalidFieldValueError{Source: report.Source, Component: string(comp.Kind), Field: "kind", Value: comp.Kind, Reason: "unknown component kind"})
				continue
			}
			fields := map[string]Entry{}
			for _, field := range sortedKeys(comp.Fields) {
				raw := comp.Fields[field]
				value, ok, reason := NormalizeValue(field, raw)
				if reason != "" {
					invalid = append(invalid, &InvalidFieldValueError{Source: report.Source, Component: string(comp.Kind), Field: field, Value: raw, Reason: reason})
					continue
				}
				if ok {
					fields[field] = Entry{Value: value, Source: report.Source, Priority: lookup.PriorityOf(report.Source, field)}
				}
			}
			if comp.SlotKey != "" {
				primary := primarySlotField(comp.Kind)
				if _, set := fields[primary]; !set {
					value, ok, reason := NormalizeValue(primary, comp.SlotKey)
					if reason != "" {
						invalid = append(invalid, &InvalidFieldValueError{Source: report.Source, Component: string(comp.Kind), Field: primary, Value: comp.SlotKey, Reason: reason})
						continue
					}
					if ok {
						fields[primary] = Entry{Value: value, Source: report.Source, Priority: lookup.PriorityOf(report.Source, primary)}
					}
				}
			}
			key := SlotKeyFor(comp.Kind)(values(fields))
			if key == "" {
				invalid = append(invalid, &InvalidFieldValueError{Source: report.Source, Component: string(comp.Kind), Field: "slot_key", Value: nil, Reason: "component has no slot key"})
				continue
			}
			id := slot{comp.Kind, key}
			merged, ok := groups[id]
			if !ok {
				merged = map[string]Entry{}
				groups[id] = merged
			}
			for field, e := range fields {
				offer(merged, field, e)
			}
		}
	}

	for id, fields := range groups {
		rec.Components = append(rec.Components, MergedComponent{Kind: id.kind, SlotKey: id.key, Fields: fields})
	}
	sort.Slice(rec.Components, func(i, j int) bool {
		if rec.Components[i].Kind != rec.Components[j].Kind {
			return rec.Components[i].Kind < rec.Components[j].Kind
		}
		return rec.Components[i].SlotKey < rec.Components[j].SlotKey
	})
	return rec, invalid
}

// offer stores e unless the current entry has a strictly higher priority
func offer(fields map[string]Entry, field string, e Entry) {
	if cur, ok := fields[field]; ok && cur.Priority > e.Priority {
		return
	}
	fields[field] = e
}
