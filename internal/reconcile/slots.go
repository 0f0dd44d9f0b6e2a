package reconcile

import (
	"strings"

	"assetrecon/internal/assets"
)

// SlotKeyFunc derives the stable identity of a component within its asset
// from the component's fields. An empty result means the slot is unknown.
type SlotKeyFunc func(fields map[string]string) string

// slotFields lists, per kind, the fields that identify a slot in order of
// preference. The first entry is where a report's SlotKey tag is stored.
var slotFields = map[assets.ComponentKind][]string{
	assets.KindEthernet:     {assets.FieldMACAddress},
	assets.KindMemory:       {"slot", "index"},
	assets.KindProcessor:    {"socket", "index"},
	assets.KindDisk:         {assets.FieldSerialNumber, "device"},
	assets.KindFibreChannel: {"wwn", "physical_id"},
	assets.KindGeneric:      {assets.FieldSerialNumber, "label"},
}

// SlotKeyFor returns the slot key function for kind
func SlotKeyFor(kind assets.ComponentKind) SlotKeyFunc {
	names := slotFields[kind]
	return func(fields map[string]string) string {
		for _, name := range names {
			if v := strings.TrimSpace(fields[name]); v != "" {
				if kind == assets.KindEthernet {
					return strings.ToUpper(v)
				}
				return v
			}
		}
		return ""
	}
}

// primarySlotField is the field a report's explicit SlotKey tag fills in
func primarySlotField(kind assets.ComponentKind) string {
	if names := slotFields[kind]; len(names) > 0 {
		return names[0]
	}
	return ""
}
