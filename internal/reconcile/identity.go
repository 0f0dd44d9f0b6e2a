package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"assetrecon/internal/assets"
	"assetrecon/internal/config"
)

// Placeholder values vendors ship in place of real identifiers
var (
	defaultSerials = []string{
		"0", "00000000", "000000000000", "0123456789", "1234567890", "123456789",
		"NONE", "N/A", "NA", "NULL", "UNKNOWN", "NOT AVAILABLE", "NOT SPECIFIED",
		"DEFAULT STRING", "TO BE FILLED BY O.E.M.", "SYSTEM SERIAL NUMBER",
		"CHASSIS SERIAL NUMBER", "INVALID", "XXXXXXXXXX",
	}
	defaultMACs = []string{
		"00:00:00:00:00:00",
		"FF:FF:FF:FF:FF:FF",
	}
)

// Blacklist rejects identity values known to be placeholders or shared
type Blacklist struct {
	serials     map[string]bool
	barcodes    map[string]bool
	macs        map[string]bool
	macPrefixes []string
}

// NewBlacklist combines the built-in placeholders with configured entries
func NewBlacklist(cfg config.Blacklist) *Blacklist {
	b := &Blacklist{
		serials:  map[string]bool{},
		barcodes: map[string]bool{},
		macs:     map[string]bool{},
	}
	for _, s := range append(append([]string{}, defaultSerials...), cfg.Serials...) {
		b.serials[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	for _, s := range append(append([]string{}, defaultSerials...), cfg.Barcodes...) {
		b.barcodes[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	for _, m := range append(append([]string{}, defaultMACs...), cfg.MACs...) {
		if mac, err := assets.NormalizeMAC(m); err == nil {
			b.macs[mac] = true
		}
	}
	for _, p := range cfg.MACPrefixes {
		b.macPrefixes = append(b.macPrefixes, strings.ToUpper(strings.TrimSpace(p)))
	}
	return b
}

// Serial reports whether serial is blacklisted
func (b *Blacklist) Serial(serial string) bool {
	return b.serials[strings.ToUpper(strings.TrimSpace(serial))]
}

// Barcode reports whether barcode is blacklisted
func (b *Blacklist) Barcode(barcode string) bool {
	return b.barcodes[strings.ToUpper(strings.TrimSpace(barcode))]
}

// MAC reports whether mac is blacklisted, either exactly or by vendor prefix
func (b *Blacklist) MAC(mac string) bool {
	norm, err := assets.NormalizeMAC(mac)
	if err != nil {
		return true
	}
	if b.macs[norm] {
		return true
	}
	for _, p := range b.macPrefixes {
		if strings.HasPrefix(norm, p) {
			return true
		}
	}
	return false
}

// IdentityKeys are the usable identity values of one merged record
type IdentityKeys struct {
	Serial            string   `json:"serial,omitempty"`
	Barcode           string   `json:"barcode,omitempty"`
	MACs              []string `json:"macs,omitempty"`
	ManagementAddress string   `json:"management_address,omitempty"`
	// Blacklisted holds identity values that were reported but rejected
	Blacklisted []string `json:"blacklisted,omitempty"`
}

// Strong reports whether any key other than the management address is set
func (k IdentityKeys) Strong() bool {
	return k.Serial != "" || k.Barcode != "" || len(k.MACs) > 0
}

// Empty reports whether no key at all is set
func (k IdentityKeys) Empty() bool {
	return !k.Strong() && k.ManagementAddress == ""
}

// LockKeys returns a sorted, namespaced list of every key
func (k IdentityKeys) LockKeys() []string {
	var out []string
	if k.Serial != "" {
		out = append(out, "serial:"+strings.ToUpper(k.Serial))
	}
	if k.Barcode != "" {
		out = append(out, "barcode:"+strings.ToUpper(k.Barcode))
	}
	for _, m := range k.MACs {
		out = append(out, "mac:"+m)
	}
	if k.ManagementAddress != "" {
		out = append(out, "mgmt:"+k.ManagementAddress)
	}
	sort.Strings(out)
	return out
}

// ExtractIdentity collects the non-blacklisted identity keys of rec
func ExtractIdentity(rec MergedRecord, bl *Blacklist) IdentityKeys {
	var keys IdentityKeys
	if serial := rec.Value(assets.FieldSerialNumber); serial != "" {
		if bl.Serial(serial) {
			keys.Blacklisted = append(keys.Blacklisted, serial)
		} else {
			keys.Serial = serial
		}
	}
	if barcode := rec.Value(assets.FieldBarcode); barcode != "" {
		if bl.Barcode(barcode) {
			keys.Blacklisted = append(keys.Blacklisted, barcode)
		} else {
			keys.Barcode = barcode
		}
	}
	seen := map[string]bool{}
	macs := []string{}
	if m := rec.Value(assets.FieldMACAddress); m != "" {
		macs = append(macs, m)
	}
	for _, c := range rec.ComponentsOfKind(assets.KindEthernet) {
		macs = append(macs, c.SlotKey)
	}
	for _, m := range macs {
		m = strings.ToUpper(m)
		if seen[m] {
			continue
		}
		seen[m] = true
		if bl.MAC(m) {
			keys.Blacklisted = append(keys.Blacklisted, m)
			continue
		}
		keys.MACs = append(keys.MACs, m)
	}
	sort.Strings(keys.MACs)
	keys.ManagementAddress = rec.Value(assets.FieldManagementAddress)
	return keys
}

// FilterComponents drops ethernet components whose MAC is blacklisted and
// returns the dropped slot keys. A usable asset-level mac_address with no
// matching NIC becomes an ethernet slot of its own, so the MAC is stored
// where FindByMAC looks for it.
func FilterComponents(rec MergedRecord, bl *Blacklist) (MergedRecord, []string) {
	var dropped []string
	kept := make([]MergedComponent, 0, len(rec.Components)+1)
	for _, c := range rec.Components {
		if c.Kind == assets.KindEthernet && bl.MAC(c.SlotKey) {
			dropped = append(dropped, c.SlotKey)
			continue
		}
		kept = append(kept, c)
	}

	if e, ok := rec.Fields[assets.FieldMACAddress]; ok && !bl.MAC(e.Value) {
		mac := strings.ToUpper(e.Value)
		known := false
		for _, c := range kept {
			if c.Kind == assets.KindEthernet && strings.EqualFold(c.SlotKey, mac) {
				known = true
				break
			}
		}
		if !known {
			kept = append(kept, MergedComponent{
				Kind:    assets.KindEthernet,
				SlotKey: mac,
				Fields:  map[string]Entry{assets.FieldMACAddress: e},
			})
			sort.SliceStable(kept, func(i, j int) bool {
				if kept[i].Kind != kept[j].Kind {
					return kept[i].Kind < kept[j].Kind
				}
				return kept[i].SlotKey < kept[j].SlotKey
			})
		}
	}
	rec.Components = kept
	return rec, dropped
}

// Finder is the read side of the store used for identity lookups
type Finder interface {
	FindBySerial(ctx context.Context, serial string) ([]assets.Asset, error)
	FindByBarcode(ctx context.Context, barcode string) ([]assets.Asset, error)
	FindByMAC(ctx context.Context, mac string) ([]assets.Asset, error)
	FindByManagementAddress(ctx context.Context, addr string) ([]assets.Asset, error)
}

// ResolutionStatus is the outcome of matching a record to the inventory
type ResolutionStatus int

const (
	NotFound ResolutionStatus = iota
	Found
	Conflict
)

func (s ResolutionStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Conflict:
		return "conflict"
	}
	return "not_found"
}

// Resolution is the result of Resolve. Asset is set only when Status is Found.
type Resolution struct {
	Status     ResolutionStatus
	Asset      *assets.Asset
	Candidates []assets.Asset
	Keys       IdentityKeys
}

// Resolver matches merged records to existing assets
type Resolver struct {
	finder    Finder
	blacklist *Blacklist
}

// NewResolver creates a new resolver
func NewResolver(finder Finder, bl *Blacklist) *Resolver {
	if bl == nil {
		bl = NewBlacklist(config.Blacklist{})
	}
	return &Resolver{finder: finder, blacklist: bl}
}

// Blacklist returns the blacklist used by the resolver
func (r *Resolver) Blacklist() *Blacklist { return r.blacklist }

// Resolve looks rec up by serial, then barcode, then each MAC. The management
// address is consulted only when those keys match nothing, and then only
// assets whose stored serial and barcode do not contradict rec qualify. Two or more
// distinct matching assets are a conflict and are returned as an
// *IdentityConflictError; the caller must not write anything.
func (r *Resolver) Resolve(ctx context.Context, rec MergedRecord) (Resolution, error) {
	return r.ResolveKeys(ctx, rec, ExtractIdentity(rec, r.blacklist))
}

// ResolveKeys is Resolve with already extracted keys
func (r *Resolver) ResolveKeys(ctx context.Context, rec MergedRecord, keys IdentityKeys) (Resolution, error) {
	res := Resolution{Status: NotFound, Keys: keys}
	if keys.Empty() {
		if rec.Value(assets.FieldModel) == "" && rec.Value(assets.FieldType) == "" {
			return res, &InsufficientIdentityError{Blacklisted: keys.Blacklisted}
		}
		return res, nil
	}

	owners := map[string][]uuid.UUID{}
	byID := map[uuid.UUID]assets.Asset{}
	var order []uuid.UUID
	collect := func(key string, found []assets.Asset, err error) error {
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}
		for _, a := range found {
			owners[key] = append(owners[key], a.ID)
			if _, ok := byID[a.ID]; !ok {
				byID[a.ID] = a
				order = append(order, a.ID)
			}
		}
		return nil
	}

	if keys.Serial != "" {
		found, err := r.finder.FindBySerial(ctx, keys.Serial)
		if err := collect("serial:"+keys.Serial, found, err); err != nil {
			return res, err
		}
	}
	if keys.Barcode != "" {
		found, err := r.finder.FindByBarcode(ctx, keys.Barcode)
		if err := collect("barcode:"+keys.Barcode, found, err); err != nil {
			return res, err
		}
	}
	for _, mac := range keys.MACs {
		found, err := r.finder.FindByMAC(ctx, mac)
		if err := collect("mac:"+mac, found, err); err != nil {
			return res, err
		}
	}
	if len(order) == 0 && keys.ManagementAddress != "" {
		found, err := r.finder.FindByManagementAddress(ctx, keys.ManagementAddress)
		var compatible []assets.Asset
		for _, a := range found {
			if contradicts(a, keys) {
				continue
			}
			compatible = append(compatible, a)
		}
		if err := collect("mgmt:"+keys.ManagementAddress, compatible, err); err != nil {
			return res, err
		}
	}

	switch len(order) {
	case 0:
		return res, nil
	case 1:
		a := byID[order[0]]
		res.Status = Found
		res.Asset = &a
		res.Candidates = []assets.Asset{a}
		return res, nil
	}
	res.Status = Conflict
	for _, id := range order {
		res.Candidates = append(res.Candidates, byID[id])
	}
	return res, &IdentityConflictError{Keys: owners, AssetIDs: append([]uuid.UUID{}, order...)}
}

// contradicts reports whether a stores a serial or barcode that differs from
// the one in keys. A device seen first by address alone carries neither.
func contradicts(a assets.Asset, keys IdentityKeys) bool {
	if keys.Serial != "" && a.SerialNumber() != "" && !strings.EqualFold(a.SerialNumber(), keys.Serial) {
		return true
	}
	if keys.Barcode != "" && a.Barcode() != "" && !strings.EqualFold(a.Barcode(), keys.Barcode) {
		return true
	}
	return false
}
