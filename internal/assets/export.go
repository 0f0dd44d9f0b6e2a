package assets

import (
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is an asset together with its components, as exported to JSON
type Snapshot struct {
	Asset      Asset       `json:"asset"`
	Components []Component `json:"components"`
}

// ExportToJSON writes snapshots to path as indented JSON
func ExportToJSON(snapshots []Snapshot, path string) error {
	if path == "" {
		path = "assets.json"
	}

	jsonData, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal assets to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write to %s: %w", path, err)
	}
	return nil
}

// LoadFromJSON loads snapshots from a JSON file written by ExportToJSON
func LoadFromJSON(path string) ([]Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var snapshots []Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return snapshots, nil
}
