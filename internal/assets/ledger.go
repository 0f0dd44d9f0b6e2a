package assets

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// PriorityLedger maps a field name to the highest priority ever accepted for it
type PriorityLedger map[string]int

// Highest returns the recorded priority for field and whether one exists
func (l PriorityLedger) Highest(field string) (int, bool) {
	p, ok := l[field]
	return p, ok
}

// Allows reports whether a write at priority may replace the value of field.
// Equal priority is allowed: the latest observation wins.
func (l PriorityLedger) Allows(field string, priority int) bool {
	current, ok := l[field]
	if !ok {
		return true
	}
	return priority >= current
}

// Record raises the entry for field to priority. It never lowers an entry.
func (l PriorityLedger) Record(field string, priority int) {
	if current, ok := l[field]; ok && current >= priority {
		return
	}
	l[field] = priority
}

// Clone returns an independent copy
func (l PriorityLedger) Clone() PriorityLedger {
	out := make(PriorityLedger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Fields returns the ledger's field names in sorted order
func (l PriorityLedger) Fields() []string {
	names := make([]string, 0, len(l))
	for k := range l {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the ledger as a JSON object; a nil ledger encodes as {}
func (l PriorityLedger) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(l))
}

// UnmarshalJSON decodes a JSON object of field -> integer priority
func (l *PriorityLedger) UnmarshalJSON(data []byte) error {
	raw := map[string]int{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode priority ledger: %w", err)
	}
	*l = PriorityLedger(raw)
	return nil
}

// Value implements driver.Valuer so the ledger is stored as a JSON text column
func (l PriorityLedger) Value() (driver.Value, error) {
	data, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *PriorityLedger) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = PriorityLedger{}
		return nil
	case string:
		return l.UnmarshalJSON([]byte(v))
	case []byte:
		return l.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into PriorityLedger", src)
	}
}
