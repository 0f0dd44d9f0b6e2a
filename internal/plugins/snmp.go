package plugins

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
)

const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
	oidSysLocation = ".1.3.6.1.2.1.1.6.0"

	oidIfDescr     = ".1.3.6.1.2.1.2.2.1.2"
	oidIfSpeed     = ".1.3.6.1.2.1.2.2.1.5"
	oidIfPhysAddr  = ".1.3.6.1.2.1.2.2.1.6"
	oidEntSerial   = ".1.3.6.1.2.1.47.1.1.1.1.11"
	oidEntModel    = ".1.3.6.1.2.1.47.1.1.1.1.13"
	oidEntMfgName  = ".1.3.6.1.2.1.47.1.1.1.1.12"
	snmpSourceName = "snmp"
)

// SNMPOptions configures the SNMP adapter
type SNMPOptions struct {
	Community string
	Version   string
	Port      uint16
	Timeout   time.Duration
}

// SNMP reads the system group, the interface table and the chassis entity
type SNMP struct {
	opts SNMPOptions
}

// NewSNMP creates a new SNMP adapter
func NewSNMP(opts SNMPOptions) *SNMP {
	if opts.Community == "" {
		opts.Community = "public"
	}
	if opts.Port == 0 {
		opts.Port = 161
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &SNMP{opts: opts}
}

// Name implements Plugin
func (s *SNMP) Name() string { return snmpSourceName }

// Collect implements Plugin
func (s *SNMP) Collect(ctx context.Context, target Target) (reconcile.SourceReport, error) {
	client := &gosnmp.GoSNMP{
		Target:    target.Address,
		Port:      s.opts.Port,
		Community: s.opts.Community,
		Version:   gosnmp.Version2c,
		Timeout:   s.opts.Timeout,
		Retries:   1,
		Context:   ctx,
	}
	if s.opts.Version == "1" {
		client.Version = gosnmp.Version1
	}

	if err := client.Connect(); err != nil {
		return reconcile.SourceReport{}, fmt.Errorf("failed to connect to %s: %w", target.Address, err)
	}
	defer client.Conn.Close()

	system, err := client.Get([]string{oidSysDescr, oidSysObjectID, oidSysName, oidSysLocation})
	if err != nil {
		// no agent or wrong community: nothing to report
		return reconcile.SourceReport{}, ErrNoData
	}

	walk := client.BulkWalkAll
	if client.Version == gosnmp.Version1 {
		walk = client.WalkAll
	}
	var tables []gosnmp.SnmpPDU
	for _, root := range []string{oidIfDescr, oidIfSpeed, oidIfPhysAddr, oidEntSerial, oidEntModel, oidEntMfgName} {
		pdus, err := walk(root)
		if err != nil {
			continue
		}
		tables = append(tables, pdus...)
	}

	return snmpReport(target, system.Variables, tables), nil
}

// snmpReport converts raw PDUs into a source report
func snmpReport(target Target, system, tables []gosnmp.SnmpPDU) reconcile.SourceReport {
	report := newReport(snmpSourceName)
	report.Fields[assets.FieldManagementAddress] = target.Address

	var descr, objectID string
	for _, pdu := range system {
		value := pduString(pdu)
		switch pdu.Name {
		case oidSysDescr:
			descr = value
			report.Fields[assets.FieldDescription] = value
		case oidSysObjectID:
			objectID = value
		case oidSysName:
			report.Fields[assets.FieldName] = value
		case oidSysLocation:
			report.Fields[assets.FieldLocation] = value
		}
	}
	if kind := assets.ClassifyDeviceType(descr, objectID); kind != assets.TypeUnknown {
		report.Fields[assets.FieldType] = kind
	}

	type iface struct{ descr, speed, mac string }
	ifaces := map[string]*iface{}
	var order []string
	get := func(index string) *iface {
		if i, ok := ifaces[index]; ok {
			return i
		}
		i := &iface{}
		ifaces[index] = i
		order = append(order, index)
		return i
	}

	entity := map[string]map[string]string{}
	for _, pdu := range tables {
		switch {
		case strings.HasPrefix(pdu.Name, oidIfDescr+"."):
			get(strings.TrimPrefix(pdu.Name, oidIfDescr+".")).descr = pduString(pdu)
		case strings.HasPrefix(pdu.Name, oidIfSpeed+"."):
			if bps := gosnmp.ToBigInt(pdu.Value).Int64(); bps > 0 {
				get(strings.TrimPrefix(pdu.Name, oidIfSpeed+".")).speed = fmt.Sprintf("%d", bps/1000000)
			}
		case strings.HasPrefix(pdu.Name, oidIfPhysAddr+"."):
			if raw, ok := pdu.Value.([]byte); ok && len(raw) == 6 {
				get(strings.TrimPrefix(pdu.Name, oidIfPhysAddr+".")).mac = net.HardwareAddr(raw).String()
			}
		default:
			for _, root := range []string{oidEntSerial, oidEntModel, oidEntMfgName} {
				if strings.HasPrefix(pdu.Name, root+".") {
					index := strings.TrimPrefix(pdu.Name, root+".")
					if entity[index] == nil {
						entity[index] = map[string]string{}
					}
					entity[index][root] = pduString(pdu)
				}
			}
		}
	}

	for _, index := range order {
		i := ifaces[index]
		if i.mac == "" {
			continue
		}
		fields := map[string]interface{}{assets.FieldMACAddress: i.mac}
		if i.descr != "" {
			fields["label"] = i.descr
		}
		if i.speed != "" && i.speed != "0" {
			fields["speed"] = i.speed
		}
		report.Components = append(report.Components, reconcile.ComponentReport{Kind: assets.KindEthernet, Fields: fields})
	}

	// the chassis is the lowest-indexed entity carrying a serial number
	if chassis := lowestWithSerial(entity); chassis != nil {
		report.Fields[assets.FieldSerialNumber] = chassis[oidEntSerial]
		if model := chassis[oidEntModel]; model != "" {
			report.Fields[assets.FieldModel] = model
		}
		if vendor := chassis[oidEntMfgName]; vendor != "" {
			report.Fields[assets.FieldVendor] = vendor
		}
	}
	return report
}

func lowestWithSerial(entity map[string]map[string]string) map[string]string {
	var best map[string]string
	bestIndex := -1
	for index, values := range entity {
		if strings.TrimSpace(values[oidEntSerial]) == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(index, "%d", &n); err != nil {
			continue
		}
		if bestIndex < 0 || n < bestIndex {
			best, bestIndex = values, n
		}
	}
	return best
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	}
	return gosnmp.ToBigInt(pdu.Value).String()
}
