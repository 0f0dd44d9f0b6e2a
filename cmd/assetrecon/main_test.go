package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/priority"
	"assetrecon/internal/reconcile"
	"assetrecon/internal/store"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadSightings(t *testing.T) {
	one := writeFile(t, `[{"source":"snmp","fields":{"serial_number":"SN-1"}},{"source":"ssh","fields":{"name":"db"}}]`)
	sightings, err := readSightings(one)
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Len(t, sightings[0], 2)
	assert.Equal(t, "ssh", sightings[0][1].Source)

	many := writeFile(t, `[[{"source":"snmp","fields":{"serial_number":"SN-1"}}],[{"source":"snmp","fields":{"serial_number":"SN-2"}}]]`)
	sightings, err = readSightings(many)
	require.NoError(t, err)
	require.Len(t, sightings, 2)
	assert.Equal(t, "SN-2", sightings[1][0].Fields["serial_number"])

	_, err = readSightings(writeFile(t, `{"source":"snmp"}`))
	assert.Error(t, err)

	_, err = readSightings(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestIngestReportsFailedSightings(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	engine, err := reconcile.NewEngine(reconcile.EngineOptions{
		Store:    s,
		Registry: priority.NewRegistry(config.Priorities{}),
	})
	require.NoError(t, err)

	sightings := [][]reconcile.SourceReport{
		{{Source: "snmp", Fields: map[string]interface{}{"serial_number": "SN-1"}}},
		{{Source: "snmp", Fields: map[string]interface{}{"name": "no identity"}}},
	}

	results, err := ingest(ctx, engine, sightings, true, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sightings failed")
	assert.Len(t, results, 1)
	assert.Empty(t, s.Snapshots())

	results, err = ingest(ctx, engine, sightings[:1], false, logging.Discard())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Committed)
	assert.Len(t, s.Snapshots(), 1)
}
