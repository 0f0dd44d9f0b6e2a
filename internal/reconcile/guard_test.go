package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrecon/internal/assets"
)

func entries(source string, priority int, fields map[string]string) map[string]Entry {
	out := map[string]Entry{}
	for k, v := range fields {
		out[k] = Entry{Value: v, Source: source, Priority: priority}
	}
	return out
}

func TestDiffFields(t *testing.T) {
	merged := entries("snmp", 10, map[string]string{"name": "srv-01", "model": "R640", "rack": "R12"})

	d := DiffFields(merged, nil)
	for _, c := range d.Changes {
		assert.Equal(t, NewField, c.Kind, c.Field)
	}

	d = DiffFields(merged, map[string]string{"name": "srv-01", "model": "R630", "location": "DC1"})
	require.Len(t, d.Changes, 3)
	kinds := map[string]ChangeKind{}
	for _, c := range d.Changes {
		kinds[c.Field] = c.Kind
	}
	assert.Equal(t, map[string]ChangeKind{"model": ProposedChange, "name": Unchanged, "rack": NewField}, kinds)

	model, ok := d.Get("model")
	require.True(t, ok)
	assert.Equal(t, "R630", model.Old)
	assert.Equal(t, "R640", model.New)
	assert.Len(t, d.Changed(), 2)
}

func TestChangeKindJSON(t *testing.T) {
	data, err := json.Marshal(FieldChange{Field: "name", Kind: ProposedChange})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"proposed_change"`)

	var back FieldChange
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ProposedChange, back.Kind)
}

func TestApplyGuard(t *testing.T) {
	fields := map[string]string{"name": "srv-01", "model": "R630", "location": "DC1"}
	ledger := assets.PriorityLedger{"name": 100, "model": 10, "location": 10}

	d := Diff{Changes: []FieldChange{
		{Field: "name", Kind: ProposedChange, Old: "srv-01", New: "unknown", Source: "snmp", Priority: 10},
		{Field: "model", Kind: ProposedChange, Old: "R630", New: "R640", Source: "snmp", Priority: 10},
		{Field: "location", Kind: Unchanged, Old: "DC1", New: "DC1", Source: "ssh", Priority: 50},
		{Field: "rack", Kind: NewField, New: "R12", Source: "arp", Priority: 5},
	}}
	out := ApplyGuard(d, fields, ledger)

	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "name", out.Rejected[0].Field)
	assert.Equal(t, 100, out.Rejected[0].LedgerPriority)

	accepted := []string{}
	for _, a := range out.Accepted {
		accepted = append(accepted, a.Field)
	}
	assert.Equal(t, []string{"model", "rack"}, accepted)

	require.Len(t, out.Confirmed, 1)
	assert.Equal(t, "location", out.Confirmed[0].Field)

	assert.Equal(t, map[string]string{"name": "srv-01", "model": "R640", "location": "DC1", "rack": "R12"}, out.Fields)
	assert.Equal(t, assets.PriorityLedger{"name": 100, "model": 10, "location": 50, "rack": 5}, out.Ledger)
	assert.True(t, out.Changed())

	// inputs are untouched
	assert.Equal(t, "R630", fields["model"])
	assert.Equal(t, 10, ledger["location"])
}

func TestApplyGuardLedgerNeverDecreases(t *testing.T) {
	fields := map[string]string{}
	ledger := assets.PriorityLedger{}
	sequence := []int{10, 50, 5, 50, 100, 10, 1000, 20}
	highest := 0
	for i, p := range sequence {
		d := DiffFields(entries("src", p, map[string]string{"name": string(rune('a' + i))}), fields)
		out := ApplyGuard(d, fields, ledger)
		assert.GreaterOrEqual(t, out.Ledger["name"], ledger["name"])
		if p >= highest {
			highest = p
			assert.Len(t, out.Accepted, 1, "priority %d", p)
		} else {
			assert.Len(t, out.Rejected, 1, "priority %d", p)
		}
		fields, ledger = out.Fields, out.Ledger
		assert.Equal(t, highest, ledger["name"])
	}
}

func TestApplyGuardRemoval(t *testing.T) {
	fields := map[string]string{"rack": "R12"}
	ledger := assets.PriorityLedger{"rack": 10}

	out := ApplyGuard(Diff{Changes: []FieldChange{Removal("rack", "R12", "manual", 1000)}}, fields, ledger)
	require.Len(t, out.Accepted, 1)
	assert.Equal(t, Removed, out.Accepted[0].Kind)
	assert.NotContains(t, out.Fields, "rack")
	assert.Equal(t, 1000, out.Ledger["rack"])
}

func TestReconcileComponents(t *testing.T) {
	assetA := assets.NewAsset()
	nic := func(mac string) assets.Component {
		c := assets.NewComponent(assetA.ID, assets.KindEthernet, mac)
		c.Fields[assets.FieldMACAddress] = mac
		return c
	}
	reported := func(mac, speed string) MergedComponent {
		return MergedComponent{Kind: assets.KindEthernet, SlotKey: mac, Fields: entries("ssh", 50, map[string]string{
			assets.FieldMACAddress: mac,
			"speed":                speed,
		})}
	}

	kept := nic("AA:BB:CC:00:00:01")
	gone := nic("AA:BB:CC:00:00:02")
	dup := nic("AA:BB:CC:00:00:01")

	plan := ReconcileComponents(
		[]assets.Component{kept, gone, dup},
		[]MergedComponent{reported("AA:BB:CC:00:00:01", "100"), reported("AA:BB:CC:00:00:03", "1000"), reported("AA:BB:CC:00:00:01", "10000")},
		SlotKeyFor(assets.KindEthernet),
	)

	require.Len(t, plan.Update, 1)
	assert.Equal(t, kept.ID, plan.Update[0].Existing.ID)
	assert.Equal(t, "10000", plan.Update[0].Reported.Fields["speed"].Value)

	require.Len(t, plan.Create, 1)
	assert.Equal(t, "AA:BB:CC:00:00:03", plan.Create[0].SlotKey)

	retained := []interface{}{}
	for _, c := range plan.Retain {
		retained = append(retained, c.ID)
	}
	assert.ElementsMatch(t, []interface{}{gone.ID, dup.ID}, retained)
}

func TestSlotKeyFor(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:00:00:01", SlotKeyFor(assets.KindEthernet)(map[string]string{"mac_address": "aa:bb:cc:00:00:01"}))
	assert.Equal(t, "DIMM0", SlotKeyFor(assets.KindMemory)(map[string]string{"slot": "DIMM0", "index": "0"}))
	assert.Equal(t, "1", SlotKeyFor(assets.KindProcessor)(map[string]string{"index": "1"}))
	assert.Equal(t, "/dev/sda", SlotKeyFor(assets.KindDisk)(map[string]string{"device": "/dev/sda"}))
	assert.Empty(t, SlotKeyFor(assets.KindGeneric)(map[string]string{"size": "1"}))
}
