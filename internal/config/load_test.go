package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
service:
  name: lab
  workers: 4
priorities:
  unknown: 5
  manual: 500
  sources:
    mgmt-api:
      default: 100
    snmp:
      default: 10
      fields:
        name: 20
store:
  driver: sqlite3
  dsn: "file:test.db"
plugins:
  snmp:
    enabled: true
    timeout: 3s
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.Service.Name)
	assert.Equal(t, 4, cfg.GetWorkers())
	assert.Equal(t, 500, cfg.Priorities.Manual)
	assert.Equal(t, 20, cfg.Priorities.Sources["snmp"].Fields["name"])
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.GetSNMPTimeout())
	assert.Equal(t, "public", cfg.Plugins.SNMP.Community)
}

func TestParseJSONAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"service": {"name": "x"}}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultUnknownPriority, cfg.Priorities.Unknown)
	assert.Equal(t, DefaultManualPriority, cfg.Priorities.Manual)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 16, cfg.GetWorkers())
	assert.Equal(t, 5*time.Minute, cfg.GetScanInterval())
}

func TestValidateRejectsPriorityAboveManual(t *testing.T) {
	_, err := Parse([]byte(`{"priorities": {"manual": 50, "sources": {"ipmi": {"default": 60}}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "ipmi"`)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte(`{"store": {"driver": "oracle", "dsn": "x"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Service.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
