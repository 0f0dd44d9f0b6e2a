package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"assetrecon/internal/plugins"
)

// maxHostBits limits CIDR expansion to a /16
const maxHostBits = 16

// LoadTargetsFromFile loads targets from a text file containing IP addresses
// and CIDR ranges, one per line. Lines starting with # are comments.
// Invalid lines are reported in the error while valid lines are still returned.
func LoadTargetsFromFile(filename string) ([]plugins.Target, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", filename, err)
	}

	targets, err := ExpandTargets(entries)
	if err != nil {
		return targets, fmt.Errorf("%s: %w", filename, err)
	}
	return targets, nil
}

// ExpandTargets turns IP addresses and IPv4 CIDR ranges into targets. Every
// invalid entry is joined into the returned error.
func ExpandTargets(entries []string) ([]plugins.Target, error) {
	var (
		targets []plugins.Target
		errs    []error
	)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			hosts, err := expandCIDR(entry)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			targets = append(targets, hosts...)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			errs = append(errs, fmt.Errorf("invalid IP address: %s", entry))
			continue
		}
		targets = append(targets, plugins.Target{Address: ip.String()})
	}
	return targets, errors.Join(errs...)
}

// expandCIDR lists the host addresses of an IPv4 network. Network and
// broadcast addresses are skipped except on /31 and /32.
func expandCIDR(cidr string) ([]plugins.Target, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("not an IPv4 network: %s", cidr)
	}

	ones, bits := ipNet.Mask.Size()
	hostBits := bits - ones
	if hostBits > maxHostBits {
		return nil, fmt.Errorf("CIDR range too large (more than /16): %s", cidr)
	}

	base := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
	first, last := uint32(1), uint32(1)<<hostBits-2
	if ones >= 31 {
		first, last = 0, uint32(1)<<hostBits-1
	}

	targets := make([]plugins.Target, 0, last-first+1)
	for i := first; i <= last; i++ {
		n := base + i
		addr := net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		targets = append(targets, plugins.Target{Address: addr.String()})
	}
	return targets, nil
}

// MergeTargets combines target lists and removes duplicate addresses
func MergeTargets(lists ...[]plugins.Target) []plugins.Target {
	seen := make(map[string]bool)
	var unique []plugins.Target
	for _, list := range lists {
		for _, t := range list {
			if !seen[t.Address] {
				seen[t.Address] = true
				unique = append(unique, t)
			}
		}
	}
	return unique
}
