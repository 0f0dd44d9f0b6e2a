package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQL drivers selectable through config.Store.Driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"assetrecon/internal/assets"
)

// SQLStore keeps assets and components in a relational database.
// Field maps and ledgers are JSON text columns; identity keys are copied into
// their own columns so lookups do not decode JSON.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// OpenSQL opens a database handle for driver (postgres, mysql or sqlite3)
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite allows one writer; serialise through a single connection
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, driver: driver, now: time.Now}, nil
}

// NewSQLStore wraps an existing handle
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// Migrate creates the schema if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const assetColumns = "id, fields, ledger, version, created, modified"

func (s *SQLStore) queryAssets(ctx context.Context, where string, args ...interface{}) ([]assets.Asset, error) {
	return s.selectAssets(ctx, "WHERE "+where+" ORDER BY id", args...)
}

func (s *SQLStore) selectAssets(ctx context.Context, tail string, args ...interface{}) ([]assets.Asset, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+assetColumns+" FROM assets "+tail), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []assets.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row scanner) (assets.Asset, error) {
	var (
		a                 assets.Asset
		id, fields        string
		created, modified int64
	)
	if err := row.Scan(&id, &fields, &a.Ledger, &a.Version, &created, &modified); err != nil {
		return assets.Asset{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return assets.Asset{}, fmt.Errorf("corrupt asset id %q: %w", id, err)
	}
	a.ID = parsed
	if err := json.Unmarshal([]byte(fields), &a.Fields); err != nil {
		return assets.Asset{}, fmt.Errorf("corrupt fields of asset %s: %w", id, err)
	}
	if a.Fields == nil {
		a.Fields = map[string]string{}
	}
	if a.Ledger == nil {
		a.Ledger = assets.PriorityLedger{}
	}
	a.Created = time.Unix(0, created).UTC()
	a.Modified = time.Unix(0, modified).UTC()
	return a, nil
}

// FindBySerial implements Store
func (s *SQLStore) FindBySerial(ctx context.Context, serial string) ([]assets.Asset, error) {
	return s.queryAssets(ctx, "LOWER(serial_number) = LOWER(?)", serial)
}

// FindByBarcode implements Store
func (s *SQLStore) FindByBarcode(ctx context.Context, barcode string) ([]assets.Asset, error) {
	return s.queryAssets(ctx, "LOWER(barcode) = LOWER(?)", barcode)
}

// FindByManagementAddress implements Store
func (s *SQLStore) FindByManagementAddress(ctx context.Context, addr string) ([]assets.Asset, error) {
	return s.queryAssets(ctx, "management_address = ?", addr)
}

// FindByMAC implements Store
func (s *SQLStore) FindByMAC(ctx context.Context, mac string) ([]assets.Asset, error) {
	return s.queryAssets(ctx,
		"id IN (SELECT asset_id FROM components WHERE kind = ? AND UPPER(slot_key) = UPPER(?))",
		string(assets.KindEthernet), mac)
}

// ListAssets implements Store
func (s *SQLStore) ListAssets(ctx context.Context, offset, limit int) ([]assets.Asset, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assets: %w", err)
	}
	page, err := s.selectAssets(ctx, "ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if page == nil {
		page = []assets.Asset{}
	}
	return page, total, nil
}

// GetAsset implements Store
func (s *SQLStore) GetAsset(ctx context.Context, id uuid.UUID) (assets.Asset, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+assetColumns+" FROM assets WHERE id = ?"), id.String())
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return assets.Asset{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return a, err
}

// ComponentsOf implements Store
func (s *SQLStore) ComponentsOf(ctx context.Context, assetID uuid.UUID) ([]assets.Component, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, kind, slot_key, fields, ledger, created, modified FROM components WHERE asset_id = ? ORDER BY kind, slot_key, id"),
		assetID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var out []assets.Component
	for rows.Next() {
		var (
			c                 assets.Component
			id, kind, fields  string
			created, modified int64
		)
		if err := rows.Scan(&id, &kind, &c.SlotKey, &fields, &c.Ledger, &created, &modified); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt component id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
			return nil, fmt.Errorf("corrupt fields of component %s: %w", id, err)
		}
		if c.Fields == nil {
			c.Fields = map[string]string{}
		}
		if c.Ledger == nil {
			c.Ledger = assets.PriorityLedger{}
		}
		c.AssetID = assetID
		c.Kind = assets.ComponentKind(kind)
		c.Created = time.Unix(0, created).UTC()
		c.Modified = time.Unix(0, modified).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Commit implements Store inside one transaction
func (s *SQLStore) Commit(ctx context.Context, cs *Changeset) (err error) {
	if err := cs.validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.now().UnixNano()
	a := cs.Asset
	fields, err := json.Marshal(a.Fields)
	if err != nil {
		return err
	}

	if cs.Create {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO assets
			(id, serial_number, barcode, management_address, fields, ledger, version, created, modified)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`),
			a.ID.String(), a.SerialNumber(), a.Barcode(), a.ManagementAddress(), string(fields), a.Ledger, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert asset %s: %w", a.ID, err)
		}
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, s.rebind(`UPDATE assets SET
			serial_number = ?, barcode = ?, management_address = ?, fields = ?, ledger = ?,
			version = version + 1, modified = ?
			WHERE id = ? AND version = ?`),
			a.SerialNumber(), a.Barcode(), a.ManagementAddress(), string(fields), a.Ledger, now, a.ID.String(), a.Version)
		if err != nil {
			return fmt.Errorf("failed to update asset %s: %w", a.ID, err)
		}
		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		if n == 0 {
			err = fmt.Errorf("asset %s at version %d: %w", a.ID, a.Version, ErrStaleAsset)
			return err
		}
	}

	for _, c := range cs.CreateComponents {
		var cf []byte
		if cf, err = json.Marshal(c.Fields); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO components
			(id, asset_id, kind, slot_key, fields, ledger, created, modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			c.ID.String(), c.AssetID.String(), string(c.Kind), c.SlotKey, string(cf), c.Ledger, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert component %s: %w", c.ID, err)
		}
	}
	for _, c := range cs.UpdateComponents {
		var cf []byte
		if cf, err = json.Marshal(c.Fields); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`UPDATE components SET fields = ?, ledger = ?, modified = ?
			WHERE id = ? AND asset_id = ?`),
			string(cf), c.Ledger, now, c.ID.String(), c.AssetID.String())
		if err != nil {
			return fmt.Errorf("failed to update component %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
