package reconcile

import (
	"fmt"
)

// ChangeKind classifies one field of a diff
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	ProposedChange
	NewField
	Removed
)

var changeKindNames = map[ChangeKind]string{
	Unchanged:      "unchanged",
	ProposedChange: "proposed_change",
	NewField:       "new_field",
	Removed:        "removed",
}

func (k ChangeKind) String() string {
	if s, ok := changeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name
func (k *ChangeKind) UnmarshalText(text []byte) error {
	for kind, name := range changeKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown change kind %q", text)
}

// FieldChange is one classified field of a diff
type FieldChange struct {
	Field    string     `json:"field"`
	Kind     ChangeKind `json:"kind"`
	Old      string     `json:"old,omitempty"`
	New      string     `json:"new,omitempty"`
	Source   string     `json:"source"`
	Priority int        `json:"priority"`
}

// Diff is the field-by-field comparison of a merged record with a stored one
type Diff struct {
	Changes []FieldChange `json:"changes"`
}

// Changed returns every change that is not Unchanged
func (d Diff) Changed() []FieldChange {
	var out []FieldChange
	for _, c := range d.Changes {
		if c.Kind != Unchanged {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the change for field
func (d Diff) Get(field string) (FieldChange, bool) {
	for _, c := range d.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return FieldChange{}, false
}

// DiffFields compares the merged entries with current. A nil current means
// no stored record exists and every field is NewField. Fields missing from
// an existing record are NewField too. Stored fields absent from the merge
// are not part of the diff: not reporting a field never removes it.
func DiffFields(merged map[string]Entry, current map[string]string) Diff {
	d := Diff{Changes: make([]FieldChange, 0, len(merged))}
	for _, field := range sortedKeys(merged) {
		e := merged[field]
		c := FieldChange{Field: field, New: e.Value, Source: e.Source, Priority: e.Priority}
		old, ok := current[field]
		switch {
		case current == nil || !ok:
			c.Kind = NewField
		case old == e.Value:
			c.Kind = Unchanged
			c.Old = old
		default:
			c.Kind = ProposedChange
			c.Old = old
		}
		d.Changes = append(d.Changes, c)
	}
	return d
}

// Removal builds the change that clears field. Only an explicit override
// produces one.
func Removal(field, old, source string, priority int) FieldChange {
	return FieldChange{Field: field, Kind: Removed, Old: old, Source: source, Priority: priority}
}
