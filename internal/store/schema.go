package store

import "fmt"

const (
	createAssets = `CREATE TABLE IF NOT EXISTS assets (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	serial_number VARCHAR(255) NOT NULL DEFAULT '',
	barcode VARCHAR(255) NOT NULL DEFAULT '',
	management_address VARCHAR(64) NOT NULL DEFAULT '',
	fields TEXT NOT NULL,
	ledger TEXT NOT NULL,
	version INTEGER NOT NULL,
	created BIGINT NOT NULL,
	modified BIGINT NOT NULL%s
)`

	createComponents = `CREATE TABLE IF NOT EXISTS components (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	asset_id VARCHAR(64) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	slot_key VARCHAR(255) NOT NULL,
	fields TEXT NOT NULL,
	ledger TEXT NOT NULL,
	created BIGINT NOT NULL,
	modified BIGINT NOT NULL%s
)`
)

// schemaFor returns the DDL for driver. MySQL has no CREATE INDEX IF NOT
// EXISTS, so its indexes are declared inline.
func schemaFor(driver string) []string {
	if driver == "mysql" {
		return []string{
			fmt.Sprintf(createAssets, `,
	INDEX idx_assets_serial (serial_number),
	INDEX idx_assets_barcode (barcode),
	INDEX idx_assets_mgmt (management_address)`),
			fmt.Sprintf(createComponents, `,
	INDEX idx_components_asset (asset_id),
	INDEX idx_components_slot (kind, slot_key)`),
		}
	}
	return []string{
		fmt.Sprintf(createAssets, ""),
		fmt.Sprintf(createComponents, ""),
		"CREATE INDEX IF NOT EXISTS idx_assets_serial ON assets (serial_number)",
		"CREATE INDEX IF NOT EXISTS idx_assets_barcode ON assets (barcode)",
		"CREATE INDEX IF NOT EXISTS idx_assets_mgmt ON assets (management_address)",
		"CREATE INDEX IF NOT EXISTS idx_components_asset ON components (asset_id)",
		"CREATE INDEX IF NOT EXISTS idx_components_slot ON components (kind, slot_key)",
	}
}
