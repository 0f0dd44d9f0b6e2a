package plugins

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
)

const arpSourceName = "arp"

// ARP resolves the MAC address of a target on the local segment and looks up
// the NIC vendor from its OUI
type ARP struct {
	iface   string
	timeout time.Duration
	vendors *assets.VendorLookup
}

// NewARP creates a new ARP adapter. An empty iface selects the first active
// interface with an IPv4 address.
func NewARP(iface string, timeout time.Duration, vendors *assets.VendorLookup) *ARP {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ARP{iface: iface, timeout: timeout, vendors: vendors}
}

// Name implements Plugin
func (a *ARP) Name() string { return arpSourceName }

// Collect implements Plugin
func (a *ARP) Collect(ctx context.Context, target Target) (reconcile.SourceReport, error) {
	dstIP := net.ParseIP(target.Address).To4()
	if dstIP == nil {
		return reconcile.SourceReport{}, ErrNoData
	}

	ifaceObj, srcIP, err := localInterface(a.iface)
	if err != nil {
		return reconcile.SourceReport{}, err
	}
	if !onLink(ifaceObj, dstIP) {
		return reconcile.SourceReport{}, ErrNoData
	}

	handle, err := pcap.OpenLive(ifaceObj.Name, 65536, true, 100*time.Millisecond)
	if err != nil {
		return reconcile.SourceReport{}, fmt.Errorf("failed to open device %s: %w", ifaceObj.Name, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return reconcile.SourceReport{}, fmt.Errorf("failed to set BPF filter: %w", err)
	}

	request, err := arpRequest(ifaceObj.HardwareAddr, srcIP, dstIP)
	if err != nil {
		return reconcile.SourceReport{}, err
	}

	deadline := time.Now().Add(a.timeout)
	retry := time.Now()
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return reconcile.SourceReport{}, ctx.Err()
		}
		if !time.Now().Before(retry) {
			if err := handle.WritePacketData(request); err != nil {
				return reconcile.SourceReport{}, fmt.Errorf("failed to send ARP request: %w", err)
			}
			retry = time.Now().Add(a.timeout / 3)
		}

		data, _, err := handle.ReadPacketData()
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			continue
		}
		if err != nil {
			return reconcile.SourceReport{}, fmt.Errorf("failed to read packet: %w", err)
		}
		ip, mac, ok := parseARPReply(data)
		if !ok || ip != target.Address {
			continue
		}
		return a.report(ctx, mac), nil
	}
	return reconcile.SourceReport{}, ErrNoData
}

func (a *ARP) report(ctx context.Context, mac string) reconcile.SourceReport {
	report := newReport(arpSourceName)
	fields := map[string]interface{}{assets.FieldMACAddress: mac}
	if a.vendors != nil {
		if vendor := a.vendors.Lookup(ctx, mac); vendor != "" {
			fields[assets.FieldVendor] = vendor
		}
	}
	report.Components = []reconcile.ComponentReport{{Kind: assets.KindEthernet, Fields: fields}}
	return report
}

// arpRequest builds a broadcast who-has frame for dstIP
func arpRequest(srcMAC net.HardwareAddr, srcIP, dstIP net.IP) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("failed to serialize ARP packet: %w", err)
	}
	return buffer.Bytes(), nil
}

// parseARPReply extracts the sender of an ARP reply frame
func parseARPReply(data []byte) (ip, mac string, ok bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return "", "", false
	}
	arp := arpLayer.(*layers.ARP)
	if arp.Operation != layers.ARPReply {
		return "", "", false
	}
	return net.IP(arp.SourceProtAddress).String(), net.HardwareAddr(arp.SourceHwAddress).String(), true
}

// localInterface returns the named interface, or the first one that is up,
// not a loopback and carries an IPv4 address, along with that address
func localInterface(name string) (*net.Interface, net.IP, error) {
	var candidates []net.Interface
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get interface %s: %w", name, err)
		}
		candidates = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list interfaces: %w", err)
		}
		candidates = all
	}

	for i := range candidates {
		iface := candidates[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return &iface, ipnet.IP.To4(), nil
			}
		}
	}
	return nil, nil, errors.New("no usable IPv4 interface for ARP")
}

// onLink reports whether ip is inside one of the interface's IPv4 networks
func onLink(iface *net.Interface, ip net.IP) bool {
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
