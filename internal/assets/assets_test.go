package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00:1a:2b:3c:4d:5e", "00:1A:2B:3C:4D:5E", false},
		{"00-1A-2B-3C-4D-5E", "00:1A:2B:3C:4D:5E", false},
		{"001a.2b3c.4d5e", "00:1A:2B:3C:4D:5E", false},
		{"001A2B3C4D5E", "00:1A:2B:3C:4D:5E", false},
		{" 00:1a:2b:3c:4d:5e ", "00:1A:2B:3C:4D:5E", false},
		{"00:1a:2b:3c:4d", "", true},
		{"not-a-mac", "", true},
		{"00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01", "", true},
	}
	for _, tc := range tests {
		got, err := NormalizeMAC(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, "00:1A:2B", MACPrefix("00:1A:2B:3C:4D:5E"))
	assert.Equal(t, "", MACPrefix("00:1A"))
}

func TestClassifyDeviceType(t *testing.T) {
	tests := []struct {
		descr, oid, want string
	}{
		{"Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M)", "", TypeNetwork},
		{"Juniper Networks, Inc. ex4300 Ethernet Switch, kernel JUNOS 18.4R2", "", TypeNetwork},
		{"Linux db-01 5.15.0-91-generic #101-Ubuntu SMP x86_64", "", TypeServer},
		{"NetApp Release 9.8P6: ONTAP", "", TypeStorage},
		{"APC Web/SNMP Management Card", ".1.3.6.1.4.1.318.1.3.27", TypePower},
		{"", "1.3.6.1.4.1.9.1.1208", TypeNetwork},
		{"my videos server box", "", TypeUnknown},
		{"", ".1.3.6.1.4.1.99999.1", TypeUnknown},
		{"iLO 5 Standard", "", TypeServer},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyDeviceType(tc.descr, tc.oid), "%q %q", tc.descr, tc.oid)
	}
}

func TestPriorityLedger(t *testing.T) {
	l := PriorityLedger{}
	assert.True(t, l.Allows("name", 1))

	l.Record("name", 50)
	assert.True(t, l.Allows("name", 50))
	assert.True(t, l.Allows("name", 60))
	assert.False(t, l.Allows("name", 10))

	l.Record("name", 10)
	p, ok := l.Highest("name")
	assert.True(t, ok)
	assert.Equal(t, 50, p)

	l.Record("model", 5)
	assert.Equal(t, []string{"model", "name"}, l.Fields())

	clone := l.Clone()
	clone.Record("name", 100)
	p, _ = l.Highest("name")
	assert.Equal(t, 50, p)
}

func TestPriorityLedgerSQL(t *testing.T) {
	var nilLedger PriorityLedger
	v, err := nilLedger.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	l := PriorityLedger{"serial_number": 100}
	v, err = l.Value()
	require.NoError(t, err)

	var scanned PriorityLedger
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, l, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))
	assert.Error(t, scanned.Scan("[1,2]"))
}

func TestCloneIsDeep(t *testing.T) {
	a := NewAsset()
	a.Fields[FieldName] = "db-01"
	a.Ledger.Record(FieldName, 50)

	b := a.Clone()
	b.Fields[FieldName] = "db-02"
	b.Ledger.Record(FieldName, 100)

	assert.Equal(t, "db-01", a.Fields[FieldName])
	p, _ := a.Ledger.Highest(FieldName)
	assert.Equal(t, 50, p)
}

func TestMACAddresses(t *testing.T) {
	id := uuid.New()
	components := []Component{
		NewComponent(id, KindEthernet, "00:1A:2B:3C:4D:5F"),
		NewComponent(id, KindDisk, "S4EV"),
		NewComponent(id, KindEthernet, "00:1A:2B:3C:4D:5E"),
	}
	assert.Equal(t, []string{"00:1A:2B:3C:4D:5E", "00:1A:2B:3C:4D:5F"}, MACAddresses(components))
	assert.True(t, KindFibreChannel.Valid())
	assert.False(t, ComponentKind("gpu").Valid())
}

func TestVendorLookup(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/94:40:C9":
			fmt.Fprint(w, "Hewlett Packard Enterprise\n")
		case "/00:00:0C":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := NewVendorLookup(srv.URL+"/", 0)
	ctx := context.Background()

	assert.Equal(t, "Hewlett Packard Enterprise", v.Lookup(ctx, "94:40:c9:aa:bb:01"))
	assert.Equal(t, "Hewlett Packard Enterprise", v.Lookup(ctx, "94-40-C9-00-00-02"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// misses are cached
	assert.Equal(t, "", v.Lookup(ctx, "02:00:00:00:00:01"))
	assert.Equal(t, "", v.Lookup(ctx, "02:00:00:00:00:02"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// failures are retried
	assert.Equal(t, "", v.Lookup(ctx, "00:00:0c:00:00:01"))
	assert.Equal(t, "", v.Lookup(ctx, "00:00:0c:00:00:01"))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	assert.Equal(t, "", v.Lookup(ctx, "garbage"))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestExportRoundTrip(t *testing.T) {
	a := NewAsset()
	a.Fields[FieldSerialNumber] = "CZJ1234ABC"
	a.Ledger.Record(FieldSerialNumber, 100)
	a.Version = 3
	c := NewComponent(a.ID, KindEthernet, "94:40:C9:AA:BB:01")
	c.Fields[FieldMACAddress] = "94:40:C9:AA:BB:01"

	path := filepath.Join(t.TempDir(), "assets.json")
	require.NoError(t, ExportToJSON([]Snapshot{{Asset: a, Components: []Component{c}}}, path))

	loaded, err := LoadFromJSON(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, a.ID, loaded[0].Asset.ID)
	assert.Equal(t, 3, loaded[0].Asset.Version)
	assert.Equal(t, PriorityLedger{FieldSerialNumber: 100}, loaded[0].Asset.Ledger)
	require.Len(t, loaded[0].Components, 1)
	assert.Equal(t, KindEthernet, loaded[0].Components[0].Kind)

	_, err = LoadFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
