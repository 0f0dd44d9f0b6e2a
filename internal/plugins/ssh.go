package plugins

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
)

const sshSourceName = "ssh"

// inventoryScript prints every section the parser understands, each behind a
// "##name" marker. Missing tools simply leave a section empty.
const inventoryScript = `echo '##serial'; cat /sys/class/dmi/id/product_serial 2>/dev/null
echo '##model'; cat /sys/class/dmi/id/product_name 2>/dev/null
echo '##vendor'; cat /sys/class/dmi/id/sys_vendor 2>/dev/null
echo '##hostname'; hostname 2>/dev/null
echo '##cpuinfo'; cat /proc/cpuinfo 2>/dev/null
echo '##meminfo'; cat /proc/meminfo 2>/dev/null
echo '##links'; ip -o link show 2>/dev/null
echo '##disks'; lsblk -dnb -o NAME,SIZE,SERIAL,TYPE 2>/dev/null
`

// SSHOptions configures the SSH adapter
type SSHOptions struct {
	Username string
	Password string
	Port     int
	Timeout  time.Duration
}

// SSH logs into Linux hosts and reads hardware inventory from sysfs and procfs
type SSH struct {
	opts SSHOptions
}

// NewSSH creates a new SSH adapter
func NewSSH(opts SSHOptions) *SSH {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &SSH{opts: opts}
}

// Name implements Plugin
func (s *SSH) Name() string { return sshSourceName }

// Collect implements Plugin
func (s *SSH) Collect(ctx context.Context, target Target) (reconcile.SourceReport, error) {
	if s.opts.Username == "" {
		return reconcile.SourceReport{}, ErrNoData
	}
	config := &ssh.ClientConfig{
		User: s.opts.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.opts.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.opts.Timeout,
	}

	addr := net.JoinHostPort(target.Address, strconv.Itoa(s.opts.Port))
	dialer := net.Dialer{Timeout: s.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return reconcile.SourceReport{}, ErrNoData
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return reconcile.SourceReport{}, fmt.Errorf("failed to open ssh session to %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return reconcile.SourceReport{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	// the script exits non-zero when the last tool is missing; the output is still usable
	_ = session.Run(inventoryScript)
	if stdout.Len() == 0 {
		return reconcile.SourceReport{}, ErrNoData
	}

	report := parseInventory(stdout.String())
	report.Fields[assets.FieldManagementAddress] = target.Address
	return report, nil
}

// parseInventory turns the output of inventoryScript into a report
func parseInventory(output string) reconcile.SourceReport {
	report := newReport(sshSourceName)
	sections := splitSections(output)

	for section, field := range map[string]string{
		"serial":   assets.FieldSerialNumber,
		"model":    assets.FieldModel,
		"vendor":   assets.FieldVendor,
		"hostname": assets.FieldName,
	} {
		if v := strings.TrimSpace(sections[section]); v != "" {
			report.Fields[field] = v
		}
	}

	cpus := parseCPUInfo(sections["cpuinfo"])
	if len(cpus) > 0 {
		report.Fields["cpu_count"] = len(cpus)
	}
	report.Components = append(report.Components, cpus...)

	if mib, ok := parseMemTotal(sections["meminfo"]); ok {
		report.Fields["memory"] = mib
	}
	report.Components = append(report.Components, parseLinks(sections["links"])...)
	report.Components = append(report.Components, parseDisks(sections["disks"])...)
	return report
}

func splitSections(output string) map[string]string {
	sections := map[string]string{}
	var (
		current string
		buf     strings.Builder
	)
	flush := func() {
		if current != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "##") {
			flush()
			current = strings.TrimPrefix(line, "##")
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return sections
}

// parseCPUInfo returns one processor component per physical socket
func parseCPUInfo(cpuinfo string) []reconcile.ComponentReport {
	type socket struct {
		model string
		cores string
	}
	sockets := map[string]*socket{}
	var order []string
	var physical, model, cores string
	commit := func() {
		if model == "" {
			return
		}
		if physical == "" {
			physical = "0"
		}
		if _, ok := sockets[physical]; !ok {
			sockets[physical] = &socket{model: model, cores: cores}
			order = append(order, physical)
		}
		physical, model, cores = "", "", ""
	}

	for _, line := range strings.Split(cpuinfo, "\n") {
		if strings.TrimSpace(line) == "" {
			commit()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "physical id":
			physical = strings.TrimSpace(value)
		case "model name":
			model = strings.TrimSpace(value)
		case "cpu cores":
			cores = strings.TrimSpace(value)
		}
	}
	commit()

	out := make([]reconcile.ComponentReport, 0, len(order))
	for _, id := range order {
		fields := map[string]interface{}{"socket": id, assets.FieldModel: sockets[id].model}
		if sockets[id].cores != "" {
			fields["cores"] = sockets[id].cores
		}
		out = append(out, reconcile.ComponentReport{Kind: assets.KindProcessor, Fields: fields})
	}
	return out
}

// parseMemTotal returns MemTotal in MiB
func parseMemTotal(meminfo string) (int64, bool) {
	for _, line := range strings.Split(meminfo, "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "MemTotal:"))
		if len(fields) == 0 {
			return 0, false
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb / 1024, true
	}
	return 0, false
}

// parseLinks reads `ip -o link show` and returns the ethernet interfaces
func parseLinks(links string) []reconcile.ComponentReport {
	var out []reconcile.ComponentReport
	for _, line := range strings.Split(links, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if at := strings.Index(name, "@"); at >= 0 {
			name = name[:at]
		}
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] != "link/ether" {
				continue
			}
			out = append(out, reconcile.ComponentReport{
				Kind: assets.KindEthernet,
				Fields: map[string]interface{}{
					assets.FieldMACAddress: fields[i+1],
					"label":                name,
				},
			})
			break
		}
	}
	return out
}

// parseDisks reads `lsblk -dnb -o NAME,SIZE,SERIAL,TYPE`. Disks without a
// serial number are keyed by their device node.
func parseDisks(disks string) []reconcile.ComponentReport {
	var out []reconcile.ComponentReport
	for _, line := range strings.Split(disks, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[len(fields)-1] != "disk" {
			continue
		}
		c := map[string]interface{}{
			"label": fields[0],
			"size":  fields[1],
		}
		if len(fields) == 4 {
			c[assets.FieldSerialNumber] = fields[2]
		} else {
			c["device"] = "/dev/" + fields[0]
		}
		out = append(out, reconcile.ComponentReport{Kind: assets.KindDisk, Fields: c})
	}
	return out
}
