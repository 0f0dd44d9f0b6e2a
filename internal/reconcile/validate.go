package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"assetrecon/internal/assets"
)

// numericFields hold quantities. They are stored in canonical decimal form.
var numericFields = map[string]bool{
	"size":      true,
	"speed":     true,
	"cores":     true,
	"threads":   true,
	"memory":    true,
	"cpu_count": true,
	"disk_size": true,
	"capacity":  true,
}

// NormalizeValue converts a reported raw value into its stored string form.
// present is false when the source did not actually report the field (nil or
// blank), which is never the same as reporting an empty value.
func NormalizeValue(field string, raw interface{}) (value string, present bool, reason string) {
	s, ok, reason := scalar(raw)
	if reason != "" {
		return "", false, reason
	}
	if !ok {
		return "", false, ""
	}

	switch {
	case numericFields[field]:
		return canonicalNumber(s)
	case field == assets.FieldMACAddress:
		mac, err := assets.NormalizeMAC(s)
		if err != nil {
			return "", false, "not a MAC address"
		}
		return mac, true, ""
	case field == assets.FieldManagementAddress:
		ip := net.ParseIP(s)
		if ip == nil {
			return "", false, "not an IP address"
		}
		return ip.String(), true, ""
	case field == "wwn":
		return normalizeWWN(s)
	}
	return s, true, ""
}

func scalar(raw interface{}) (string, bool, string) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false, ""
	case string:
		s = v
	case json.Number:
		s = v.String()
	case int:
		s = strconv.FormatInt(int64(v), 10)
	case int8:
		s = strconv.FormatInt(int64(v), 10)
	case int16:
		s = strconv.FormatInt(int64(v), 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case uint8:
		s = strconv.FormatUint(uint64(v), 10)
	case uint16:
		s = strconv.FormatUint(uint64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case float32:
		s = formatFloat(float64(v))
	case float64:
		s = formatFloat(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return "", false, fmt.Sprintf("unsupported value type %T", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, ""
	}
	return s, true, ""
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// canonicalNumber keeps whole numbers exact and uses floats only for fractions
func canonicalNumber(s string) (string, bool, string) {
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(u, 10), true, ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false, "not a number"
	}
	if f < 0 {
		return "", false, "negative quantity"
	}
	return formatFloat(f), true, ""
}

func normalizeWWN(s string) (string, bool, string) {
	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.ToLower(s))
	if len(hex) != 16 {
		return "", false, "WWN must have 8 octets"
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", false, "WWN is not hexadecimal"
		}
	}
	parts := make([]string, 0, 8)
	for i := 0; i < 16; i += 2 {
		parts = append(parts, hex[i:i+2])
	}
	return strings.Join(parts, ":"), true, ""
}
