package config

import "time"

// Config represents the application configuration
type Config struct {
	Service struct {
		Name         string `json:"name" yaml:"name"`
		Workers      int    `json:"workers" yaml:"workers"`
		ScanInterval string `json:"scan_interval" yaml:"scan_interval"`
	} `json:"service" yaml:"service"`

	Network struct {
		Interface  string   `json:"interface" yaml:"interface"`
		Targets    []string `json:"targets" yaml:"targets"`
		IPListFile string   `json:"ip_list_file" yaml:"ip_list_file"`
	} `json:"network" yaml:"network"`

	Priorities Priorities `json:"priorities" yaml:"priorities"`
	Blacklist  Blacklist  `json:"blacklist" yaml:"blacklist"`
	Store      Store      `json:"store" yaml:"store"`
	Plugins    Plugins    `json:"plugins" yaml:"plugins"`

	API struct {
		Listen string `json:"listen" yaml:"listen"`
	} `json:"api" yaml:"api"`

	Logging Logging `json:"logging" yaml:"logging"`
}

// Priorities configures the trust level of every discovery source
type Priorities struct {
	// Unknown is the priority of sources not listed in Sources
	Unknown int `json:"unknown" yaml:"unknown"`

	// Manual is the priority of human overrides and the ceiling for every source
	Manual int `json:"manual" yaml:"manual"`

	Sources map[string]SourcePriority `json:"sources" yaml:"sources"`
}

// SourcePriority is a source's default priority with optional per-field overrides
type SourcePriority struct {
	Default int            `json:"default" yaml:"default"`
	Fields  map[string]int `json:"fields" yaml:"fields"`
}

// Blacklist lists identity values known to be placeholders
type Blacklist struct {
	Serials     []string `json:"serials" yaml:"serials"`
	Barcodes    []string `json:"barcodes" yaml:"barcodes"`
	MACs        []string `json:"macs" yaml:"macs"`
	MACPrefixes []string `json:"mac_prefixes" yaml:"mac_prefixes"`
}

// Store selects the record store backend
type Store struct {
	// Driver is one of memory, json, postgres, mysql, sqlite3
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// Plugins configures the discovery adapters
type Plugins struct {
	SNMP struct {
		Enabled   bool   `json:"enabled" yaml:"enabled"`
		Community string `json:"community" yaml:"community"`
		Version   string `json:"version" yaml:"version"`
		Port      int    `json:"port" yaml:"port"`
		Timeout   string `json:"timeout" yaml:"timeout"`
	} `json:"snmp" yaml:"snmp"`

	SSH struct {
		Enabled  bool   `json:"enabled" yaml:"enabled"`
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
		Port     int    `json:"port" yaml:"port"`
		Timeout  string `json:"timeout" yaml:"timeout"`
	} `json:"ssh" yaml:"ssh"`

	MDNS struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Service string `json:"service" yaml:"service"`
		Timeout string `json:"timeout" yaml:"timeout"`
	} `json:"mdns" yaml:"mdns"`

	ARP struct {
		Enabled   bool   `json:"enabled" yaml:"enabled"`
		Timeout   string `json:"timeout" yaml:"timeout"`
		VendorAPI string `json:"vendor_api" yaml:"vendor_api"`
	} `json:"arp" yaml:"arp"`

	WebUI struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Timeout string `json:"timeout" yaml:"timeout"`
	} `json:"webui" yaml:"webui"`
}

// Logging controls log output
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Path   string `json:"path" yaml:"path"`
}

// GetScanInterval returns the service scan interval as a time.Duration
func (c *Config) GetScanInterval() time.Duration {
	return parseDuration(c.Service.ScanInterval, 5*time.Minute)
}

// GetWorkers returns the number of concurrent sightings
func (c *Config) GetWorkers() int {
	if c.Service.Workers <= 0 {
		return 16
	}
	return c.Service.Workers
}

// GetSNMPTimeout returns the SNMP request timeout
func (c *Config) GetSNMPTimeout() time.Duration {
	return parseDuration(c.Plugins.SNMP.Timeout, 2*time.Second)
}

// GetSSHTimeout returns the SSH dial and command timeout
func (c *Config) GetSSHTimeout() time.Duration {
	return parseDuration(c.Plugins.SSH.Timeout, 5*time.Second)
}

// GetMDNSTimeout returns how long to listen for mDNS answers
func (c *Config) GetMDNSTimeout() time.Duration {
	return parseDuration(c.Plugins.MDNS.Timeout, 3*time.Second)
}

// GetARPTimeout returns how long to wait for an ARP reply
func (c *Config) GetARPTimeout() time.Duration {
	return parseDuration(c.Plugins.ARP.Timeout, 2*time.Second)
}

// GetWebUITimeout returns the page load timeout of the web UI adapter
func (c *Config) GetWebUITimeout() time.Duration {
	return parseDuration(c.Plugins.WebUI.Timeout, 15*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
