// Package plugins holds the discovery adapters. Each adapter inspects one
// target over one protocol and returns a raw report; it never touches the
// inventory.
package plugins

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"assetrecon/internal/assets"
	"assetrecon/internal/config"
	"assetrecon/internal/reconcile"
)

// ErrNoData means the target did not answer on the adapter's protocol. The
// orchestrator skips the adapter for that sighting without logging an error.
var ErrNoData = errors.New("no data from target")

// Target is one address to inspect
type Target struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname,omitempty"`
}

// Plugin collects a report about one target
type Plugin interface {
	Name() string
	Collect(ctx context.Context, target Target) (reconcile.SourceReport, error)
}

// FromConfig builds every enabled adapter
func FromConfig(cfg *config.Config, log logrus.FieldLogger) []Plugin {
	var out []Plugin
	if cfg.Plugins.SNMP.Enabled {
		out = append(out, NewSNMP(SNMPOptions{
			Community: cfg.Plugins.SNMP.Community,
			Version:   cfg.Plugins.SNMP.Version,
			Port:      uint16(cfg.Plugins.SNMP.Port),
			Timeout:   cfg.GetSNMPTimeout(),
		}))
	}
	if cfg.Plugins.SSH.Enabled {
		out = append(out, NewSSH(SSHOptions{
			Username: cfg.Plugins.SSH.Username,
			Password: cfg.Plugins.SSH.Password,
			Port:     cfg.Plugins.SSH.Port,
			Timeout:  cfg.GetSSHTimeout(),
		}))
	}
	if cfg.Plugins.MDNS.Enabled {
		out = append(out, NewMDNS(cfg.Plugins.MDNS.Service, cfg.GetMDNSTimeout(), log))
	}
	if cfg.Plugins.ARP.Enabled {
		vendorAPI := cfg.Plugins.ARP.VendorAPI
		if vendorAPI == "" {
			vendorAPI = assets.DefaultVendorAPI
		}
		out = append(out, NewARP(cfg.Network.Interface, cfg.GetARPTimeout(), assets.NewVendorLookup(vendorAPI, time.Second)))
	}
	if cfg.Plugins.WebUI.Enabled {
		out = append(out, NewWebUI(cfg.GetWebUITimeout()))
	}
	return out
}

func newReport(source string) reconcile.SourceReport {
	return reconcile.SourceReport{Source: source, Fields: map[string]interface{}{}}
}
