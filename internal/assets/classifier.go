package assets

import (
	"strings"
)

// Device type values written to FieldType
const (
	TypeServer  = "server"
	TypeNetwork = "network"
	TypeStorage = "storage"
	TypePower   = "power"
	TypeUnknown = "unknown"
)

// enterpriseTypes maps IANA private enterprise numbers that only ship one
// class of device. Vendors that ship several classes are left to keyword matching.
var enterpriseTypes = map[string]string{
	"9":     TypeNetwork, // Cisco
	"2636":  TypeNetwork, // Juniper
	"30065": TypeNetwork, // Arista
	"6027":  TypeNetwork, // Force10
	"1588":  TypeNetwork, // Brocade
	"12356": TypeNetwork, // Fortinet
	"25461": TypeNetwork, // Palo Alto
	"789":   TypeStorage, // NetApp
	"1139":  TypeStorage, // EMC
	"12740": TypeStorage, // EqualLogic
	"318":   TypePower,   // APC
	"534":   TypePower,   // Eaton
	"674":   TypeServer,  // Dell
	"10418": TypeServer,  // Avocent KVM behind servers
}

var descrKeywords = []struct {
	keyword string
	kind    string
}{
	{"switch", TypeNetwork},
	{"router", TypeNetwork},
	{"ios software", TypeNetwork},
	{"junos", TypeNetwork},
	{"eos", TypeNetwork},
	{"firewall", TypeNetwork},
	{"storage", TypeStorage},
	{"ontap", TypeStorage},
	{"san", TypeStorage},
	{"ups", TypePower},
	{"pdu", TypePower},
	{"idrac", TypeServer},
	{"ilo", TypeServer},
	{"linux", TypeServer},
	{"windows", TypeServer},
	{"vmware esxi", TypeServer},
}

// ClassifyDeviceType infers a device type from the SNMP system description and
// sysObjectID. Keyword matches on the description win over enterprise numbers.
func ClassifyDeviceType(sysDescr, sysObjectID string) string {
	descr := strings.ToLower(sysDescr)
	for _, kw := range descrKeywords {
		if containsWord(descr, kw.keyword) {
			return kw.kind
		}
	}
	if kind, ok := enterpriseTypes[enterpriseNumber(sysObjectID)]; ok {
		return kind
	}
	return TypeUnknown
}

// enterpriseNumber extracts the number following 1.3.6.1.4.1 in an OID
func enterpriseNumber(oid string) string {
	const prefix = "1.3.6.1.4.1."
	oid = strings.TrimPrefix(strings.TrimSpace(oid), ".")
	if !strings.HasPrefix(oid, prefix) {
		return ""
	}
	rest := oid[len(prefix):]
	if idx := strings.Index(rest, "."); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// containsWord matches keyword at word boundaries so "eos" does not match "videos"
func containsWord(s, keyword string) bool {
	for start := 0; start <= len(s)-len(keyword); {
		idx := strings.Index(s[start:], keyword)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(keyword)
		before := idx == 0 || !isWordByte(s[idx-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		start = idx + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
