package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the configuration leaves them unset
const (
	DefaultUnknownPriority = 10
	DefaultManualPriority  = 1000
)

var knownDrivers = map[string]bool{
	"memory":   true,
	"json":     true,
	"postgres": true,
	"mysql":    true,
	"sqlite3":  true,
}

// Load reads configuration from a JSON or YAML file and validates it
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse decodes JSON, falling back to YAML, then applies defaults and validates
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
		cfg = &Config{}
		if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
			return nil, fmt.Errorf("neither JSON (%v) nor YAML: %w", jsonErr, yamlErr)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with an in-memory store and no plugins
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "assetrecon"
	}
	if c.Priorities.Unknown == 0 {
		c.Priorities.Unknown = DefaultUnknownPriority
	}
	if c.Priorities.Manual == 0 {
		c.Priorities.Manual = DefaultManualPriority
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Plugins.SNMP.Community == "" {
		c.Plugins.SNMP.Community = "public"
	}
	if c.Plugins.SNMP.Port == 0 {
		c.Plugins.SNMP.Port = 161
	}
	if c.Plugins.SSH.Port == 0 {
		c.Plugins.SSH.Port = 22
	}
	if c.Plugins.MDNS.Service == "" {
		c.Plugins.MDNS.Service = "_workstation._tcp"
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error
	if !knownDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store driver %q requires a dsn", c.Store.Driver))
	}
	if c.Service.Workers < 0 {
		errs = append(errs, fmt.Errorf("service.workers must not be negative"))
	}
	if c.Priorities.Unknown > c.Priorities.Manual {
		errs = append(errs, fmt.Errorf("unknown-source priority %d exceeds manual priority %d", c.Priorities.Unknown, c.Priorities.Manual))
	}
	for name, src := range c.Priorities.Sources {
		if src.Default > c.Priorities.Manual {
			errs = append(errs, fmt.Errorf("source %q priority %d exceeds manual priority %d", name, src.Default, c.Priorities.Manual))
		}
		for field, p := range src.Fields {
			if p > c.Priorities.Manual {
				errs = append(errs, fmt.Errorf("source %q field %q priority %d exceeds manual priority %d", name, field, p, c.Priorities.Manual))
			}
		}
	}
	return errors.Join(errs...)
}
