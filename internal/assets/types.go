package assets

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Well-known asset field names
const (
	FieldName              = "name"
	FieldSerialNumber      = "serial_number"
	FieldBarcode           = "barcode"
	FieldManagementAddress = "management_address"
	FieldMACAddress        = "mac_address"
	FieldModel             = "model"
	FieldType              = "type"
	FieldVendor            = "vendor"
	FieldLocation          = "location"
	FieldRack              = "rack"
	FieldDescription       = "description"
)

// ComponentKind is the type of a sub-object owned by an Asset
type ComponentKind string

const (
	KindProcessor    ComponentKind = "processor"
	KindMemory       ComponentKind = "memory"
	KindDisk         ComponentKind = "disk"
	KindEthernet     ComponentKind = "ethernet"
	KindFibreChannel ComponentKind = "fibrechannel"
	KindGeneric      ComponentKind = "generic"
)

// Kinds lists every component kind in a fixed order
var Kinds = []ComponentKind{KindProcessor, KindMemory, KindDisk, KindEthernet, KindFibreChannel, KindGeneric}

// Valid reports whether k is a known component kind
func (k ComponentKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Timestamps records creation and last modification of a persisted record
type Timestamps struct {
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Touch sets Modified to now, and Created too if it was never set
func (t *Timestamps) Touch(now time.Time) {
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Modified = now
}

// Asset represents a tracked physical device
type Asset struct {
	ID      uuid.UUID         `json:"id"`
	Fields  map[string]string `json:"fields"`
	Ledger  PriorityLedger    `json:"ledger"`
	Version int               `json:"version"`
	Timestamps
}

// NewAsset creates an empty asset with a fresh ID
func NewAsset() Asset {
	return Asset{
		ID:     uuid.New(),
		Fields: map[string]string{},
		Ledger: PriorityLedger{},
	}
}

// SerialNumber returns the stored serial number, or ""
func (a Asset) SerialNumber() string { return a.Fields[FieldSerialNumber] }

// Barcode returns the stored barcode, or ""
func (a Asset) Barcode() string { return a.Fields[FieldBarcode] }

// ManagementAddress returns the stored management address, or ""
func (a Asset) ManagementAddress() string { return a.Fields[FieldManagementAddress] }

// Clone returns a deep copy so callers can mutate fields and ledger freely
func (a Asset) Clone() Asset {
	out := a
	out.Fields = cloneFields(a.Fields)
	out.Ledger = a.Ledger.Clone()
	return out
}

// Component is a typed sub-object owned by exactly one Asset
type Component struct {
	ID      uuid.UUID         `json:"id"`
	AssetID uuid.UUID         `json:"asset_id"`
	Kind    ComponentKind     `json:"kind"`
	SlotKey string            `json:"slot_key"`
	Fields  map[string]string `json:"fields"`
	Ledger  PriorityLedger    `json:"ledger"`
	Timestamps
}

// NewComponent creates an empty component attached to assetID
func NewComponent(assetID uuid.UUID, kind ComponentKind, slotKey string) Component {
	return Component{
		ID:      uuid.New(),
		AssetID: assetID,
		Kind:    kind,
		SlotKey: slotKey,
		Fields:  map[string]string{},
		Ledger:  PriorityLedger{},
	}
}

// Clone returns a deep copy of the component
func (c Component) Clone() Component {
	out := c
	out.Fields = cloneFields(c.Fields)
	out.Ledger = c.Ledger.Clone()
	return out
}

// MACAddresses returns the sorted slot keys of every ethernet component
func MACAddresses(components []Component) []string {
	var macs []string
	for _, c := range components {
		if c.Kind == KindEthernet && c.SlotKey != "" {
			macs = append(macs, c.SlotKey)
		}
	}
	sort.Strings(macs)
	return macs
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
