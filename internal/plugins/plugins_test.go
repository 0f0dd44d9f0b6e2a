package plugins

import (
	"context"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/gosnmp/gosnmp"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrecon/internal/assets"
	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/reconcile"
)

const sampleInventory = `##serial
CZJ1234ABC
##model
ProLiant DL380 Gen10
##vendor
HPE
##hostname
db-01
##cpuinfo
processor	: 0
physical id	: 0
model name	: Intel(R) Xeon(R) Gold 6130 CPU @ 2.10GHz
cpu cores	: 16

processor	: 1
physical id	: 0
model name	: Intel(R) Xeon(R) Gold 6130 CPU @ 2.10GHz
cpu cores	: 16

processor	: 2
physical id	: 1
model name	: Intel(R) Xeon(R) Gold 6130 CPU @ 2.10GHz
cpu cores	: 16

##meminfo
MemTotal:       263846412 kB
MemFree:         1203400 kB
##links
1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN mode DEFAULT group default qlen 1000\    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
2: eno1: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP mode DEFAULT group default qlen 1000\    link/ether 94:40:c9:aa:bb:01 brd ff:ff:ff:ff:ff:ff
3: bond0.10@bond0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP\    link/ether 94:40:c9:aa:bb:02 brd ff:ff:ff:ff:ff:ff
##disks
sda 480103981056 S4EVNX0N123456 disk
sdb 480103981056 disk
sr0 1073741312 rom
`

func TestParseInventory(t *testing.T) {
	report := parseInventory(sampleInventory)
	assert.Equal(t, "ssh", report.Source)
	assert.Equal(t, "CZJ1234ABC", report.Fields[assets.FieldSerialNumber])
	assert.Equal(t, "ProLiant DL380 Gen10", report.Fields[assets.FieldModel])
	assert.Equal(t, "HPE", report.Fields[assets.FieldVendor])
	assert.Equal(t, "db-01", report.Fields[assets.FieldName])
	assert.Equal(t, 2, report.Fields["cpu_count"])
	assert.Equal(t, int64(257662), report.Fields["memory"])

	byKind := map[assets.ComponentKind][]reconcile.ComponentReport{}
	for _, c := range report.Components {
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}

	require.Len(t, byKind[assets.KindProcessor], 2)
	assert.Equal(t, "0", byKind[assets.KindProcessor][0].Fields["socket"])
	assert.Equal(t, "16", byKind[assets.KindProcessor][0].Fields["cores"])
	assert.Equal(t, "1", byKind[assets.KindProcessor][1].Fields["socket"])

	require.Len(t, byKind[assets.KindEthernet], 2)
	assert.Equal(t, "94:40:c9:aa:bb:01", byKind[assets.KindEthernet][0].Fields[assets.FieldMACAddress])
	assert.Equal(t, "eno1", byKind[assets.KindEthernet][0].Fields["label"])
	assert.Equal(t, "bond0.10", byKind[assets.KindEthernet][1].Fields["label"])

	require.Len(t, byKind[assets.KindDisk], 2)
	assert.Equal(t, "S4EVNX0N123456", byKind[assets.KindDisk][0].Fields[assets.FieldSerialNumber])
	assert.Equal(t, "480103981056", byKind[assets.KindDisk][0].Fields["size"])
	assert.Equal(t, "/dev/sdb", byKind[assets.KindDisk][1].Fields["device"])
}

func TestParseInventoryEmptySections(t *testing.T) {
	report := parseInventory("##serial\n##model\n##hostname\nweb-1\n##cpuinfo\n##links\n")
	assert.Equal(t, map[string]interface{}{assets.FieldName: "web-1"}, report.Fields)
	assert.Empty(t, report.Components)
}

func TestParsedInventoryMerges(t *testing.T) {
	registry := testRegistry()
	rec, invalid := reconcile.Merge([]reconcile.SourceReport{parseInventory(sampleInventory)}, registry)
	require.Empty(t, invalid)
	assert.Equal(t, "257662", rec.Value("memory"))
	assert.Len(t, rec.ComponentsOfKind(assets.KindEthernet), 2)
	assert.Equal(t, "94:40:C9:AA:BB:01", rec.ComponentsOfKind(assets.KindEthernet)[0].SlotKey)
}

func TestSNMPReport(t *testing.T) {
	system := []gosnmp.SnmpPDU{
		{Name: oidSysDescr, Type: gosnmp.OctetString, Value: []byte("Cisco IOS Software, C2960 Software")},
		{Name: oidSysObjectID, Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.1.1208"},
		{Name: oidSysName, Type: gosnmp.OctetString, Value: []byte("access-sw-01")},
		{Name: oidSysLocation, Type: gosnmp.OctetString, Value: []byte("DC1 Row 4")},
	}
	tables := []gosnmp.SnmpPDU{
		{Name: oidIfDescr + ".1", Type: gosnmp.OctetString, Value: []byte("GigabitEthernet0/1")},
		{Name: oidIfDescr + ".2", Type: gosnmp.OctetString, Value: []byte("Null0")},
		{Name: oidIfSpeed + ".1", Type: gosnmp.Gauge32, Value: uint(1000000000)},
		{Name: oidIfPhysAddr + ".1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}},
		{Name: oidIfPhysAddr + ".2", Type: gosnmp.OctetString, Value: []byte{}},
		{Name: oidEntSerial + ".1001", Type: gosnmp.OctetString, Value: []byte("FOC1234X0AB")},
		{Name: oidEntModel + ".1001", Type: gosnmp.OctetString, Value: []byte("WS-C2960X-48TS-L")},
		{Name: oidEntSerial + ".1", Type: gosnmp.OctetString, Value: []byte("FCW2222L0CD")},
		{Name: oidEntModel + ".1", Type: gosnmp.OctetString, Value: []byte("WS-C2960X-48")},
		{Name: oidEntMfgName + ".1", Type: gosnmp.OctetString, Value: []byte("Cisco")},
		{Name: oidEntSerial + ".2", Type: gosnmp.OctetString, Value: []byte("")},
	}

	report := snmpReport(Target{Address: "10.1.0.2"}, system, tables)
	assert.Equal(t, "snmp", report.Source)
	assert.Equal(t, "access-sw-01", report.Fields[assets.FieldName])
	assert.Equal(t, "DC1 Row 4", report.Fields[assets.FieldLocation])
	assert.Equal(t, assets.TypeNetwork, report.Fields[assets.FieldType])
	assert.Equal(t, "10.1.0.2", report.Fields[assets.FieldManagementAddress])
	assert.Equal(t, "FCW2222L0CD", report.Fields[assets.FieldSerialNumber])
	assert.Equal(t, "WS-C2960X-48", report.Fields[assets.FieldModel])
	assert.Equal(t, "Cisco", report.Fields[assets.FieldVendor])

	require.Len(t, report.Components, 1)
	nic := report.Components[0]
	assert.Equal(t, assets.KindEthernet, nic.Kind)
	assert.Equal(t, "00:1a:2b:3c:4d:5e", nic.Fields[assets.FieldMACAddress])
	assert.Equal(t, "GigabitEthernet0/1", nic.Fields["label"])
	assert.Equal(t, "1000", nic.Fields["speed"])
}

func TestMDNSReport(t *testing.T) {
	entries := []*mdns.ServiceEntry{
		{Host: "printer.local.", AddrV4: net.ParseIP("10.0.0.7"), Info: "HP LaserJet"},
		{Host: "nas-01.local.", AddrV4: net.ParseIP("10.0.0.9")},
	}

	report, ok := mdnsReport(entries, Target{Address: "10.0.0.9"})
	require.True(t, ok)
	assert.Equal(t, "nas-01", report.Fields[assets.FieldName])
	assert.NotContains(t, report.Fields, assets.FieldDescription)

	report, ok = mdnsReport(entries, Target{Address: "10.0.0.7"})
	require.True(t, ok)
	assert.Equal(t, "HP LaserJet", report.Fields[assets.FieldDescription])

	_, ok = mdnsReport(entries, Target{Address: "10.0.0.1"})
	assert.False(t, ok)
}

func TestMDNSCollectSharesBrowse(t *testing.T) {
	calls := 0
	m := NewMDNS("", 0, logging.Discard())
	m.query = func(p *mdns.QueryParam) error {
		calls++
		p.Entries <- &mdns.ServiceEntry{Host: "ws-3.local.", AddrV4: net.ParseIP("10.0.0.3")}
		return nil
	}

	report, err := m.Collect(context.Background(), Target{Address: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, "ws-3", report.Fields[assets.FieldName])

	_, err = m.Collect(context.Background(), Target{Address: "10.0.0.4"})
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 1, calls)
}

func TestARPReplyRoundTrip(t *testing.T) {
	src := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	request, err := arpRequest(src, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.20"))
	require.NoError(t, err)

	// a request is not a reply
	_, _, ok := parseARPReply(request)
	assert.False(t, ok)

	replier := net.HardwareAddr{0x94, 0x40, 0xc9, 0xaa, 0xbb, 0x01}
	eth := layers.Ethernet{SrcMAC: replier, DstMAC: src, EthernetType: layers.EthernetTypeARP}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(replier),
		SourceProtAddress: []byte(net.ParseIP("10.0.0.20").To4()),
		DstHwAddress:      []byte(src),
		DstProtAddress:    []byte(net.ParseIP("10.0.0.1").To4()),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp))

	ip, mac, ok := parseARPReply(buf.Bytes())
	require.True(t, ok)
	assert.Equal(t, "10.0.0.20", ip)
	assert.Equal(t, "94:40:c9:aa:bb:01", mac)
}

func TestWebUIReport(t *testing.T) {
	report, ok := webUIReport(Target{Address: "10.0.0.50"}, "https://10.0.0.50/", "  iDRAC-srv01 - Summary ")
	require.True(t, ok)
	assert.Equal(t, "iDRAC-srv01 - Summary", report.Fields["web_title"])
	assert.Equal(t, assets.TypeServer, report.Fields[assets.FieldType])

	_, ok = webUIReport(Target{Address: "10.0.0.50"}, "http://10.0.0.50/", "")
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Empty(t, FromConfig(cfg, logging.Discard()))

	cfg.Plugins.SNMP.Enabled = true
	cfg.Plugins.SSH.Enabled = true
	cfg.Plugins.MDNS.Enabled = true
	cfg.Plugins.ARP.Enabled = true
	cfg.Plugins.WebUI.Enabled = true
	names := []string{}
	for _, p := range FromConfig(cfg, logging.Discard()) {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"snmp", "ssh", "mdns", "arp", "webui"}, names)
}

func testRegistry() reconcile.PriorityLookup {
	return fixedPriority(10)
}

type fixedPriority int

func (p fixedPriority) PriorityOf(string, string) int { return int(p) }
