package reconcile

import (
	"assetrecon/internal/assets"
)

// Decision is a guarded change together with the ledger entry it was
// weighed against
type Decision struct {
	FieldChange
	LedgerPriority int `json:"ledger_priority"`
}

// GuardOutcome is the result of passing a diff through the save-priority
// guard. Fields and Ledger are the values to persist.
type GuardOutcome struct {
	Accepted []Decision
	Rejected []Decision
	// Confirmed lists unchanged fields whose ledger entry was raised
	Confirmed []Decision
	Fields    map[string]string
	Ledger    assets.PriorityLedger
}

// Changed reports whether anything has to be written
func (o GuardOutcome) Changed() bool {
	return len(o.Accepted) > 0 || len(o.Confirmed) > 0
}

// ApplyGuard decides, per changed field, whether the write is allowed by the
// ledger. A write is accepted when its priority is at least the highest
// priority ever accepted for that field; accepted writes raise the ledger.
// Rejected writes leave both value and ledger untouched. The inputs are not
// modified.
func ApplyGuard(d Diff, fields map[string]string, ledger assets.PriorityLedger) GuardOutcome {
	out := GuardOutcome{
		Fields: make(map[string]string, len(fields)),
		Ledger: ledger.Clone(),
	}
	for k, v := range fields {
		out.Fields[k] = v
	}

	for _, c := range d.Changes {
		current, _ := out.Ledger.Highest(c.Field)
		dec := Decision{FieldChange: c, LedgerPriority: current}
		if c.Kind == Unchanged {
			if c.Priority > current {
				out.Ledger.Record(c.Field, c.Priority)
				out.Confirmed = append(out.Confirmed, dec)
			}
			continue
		}
		if !out.Ledger.Allows(c.Field, c.Priority) {
			out.Rejected = append(out.Rejected, dec)
			continue
		}
		if c.Kind == Removed {
			delete(out.Fields, c.Field)
		} else {
			out.Fields[c.Field] = c.New
		}
		out.Ledger.Record(c.Field, c.Priority)
		out.Accepted = append(out.Accepted, dec)
	}
	return out
}
