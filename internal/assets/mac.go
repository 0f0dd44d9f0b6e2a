package assets

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeMAC parses a MAC address in any of the common notations and returns
// it upper-case and colon separated, e.g. "00:1A:2B:3C:4D:5E".
func NormalizeMAC(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	// bare 12 hex digits, as printed by some management controllers
	if len(s) == 12 && !strings.ContainsAny(s, ":-.") {
		parts := make([]string, 0, 6)
		for i := 0; i < 12; i += 2 {
			parts = append(parts, s[i:i+2])
		}
		s = strings.Join(parts, ":")
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("invalid MAC address %q: %w", raw, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid MAC address %q: expected 6 octets, got %d", raw, len(hw))
	}
	return strings.ToUpper(hw.String()), nil
}

// MACPrefix returns the OUI part (first three octets) of a normalized MAC
func MACPrefix(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], ":")
}
