// Package store persists assets, their components and their priority ledgers.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"assetrecon/internal/assets"
	"assetrecon/internal/config"
)

var (
	// ErrNotFound is returned when a requested asset does not exist
	ErrNotFound = errors.New("asset not found")
	// ErrStaleAsset is returned by Commit when the asset changed since it was read
	ErrStaleAsset = errors.New("asset was modified concurrently")
)

// Store is the logical read/write contract of the record store.
// Find methods return every matching asset; an empty slice means no match.
type Store interface {
	FindBySerial(ctx context.Context, serial string) ([]assets.Asset, error)
	FindByBarcode(ctx context.Context, barcode string) ([]assets.Asset, error)
	// FindByMAC returns the owners of ethernet components with the given MAC
	FindByMAC(ctx context.Context, mac string) ([]assets.Asset, error)
	FindByManagementAddress(ctx context.Context, addr string) ([]assets.Asset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (assets.Asset, error)
	// ListAssets returns one page of assets ordered by ID and the total count
	ListAssets(ctx context.Context, offset, limit int) ([]assets.Asset, int, error)
	ComponentsOf(ctx context.Context, assetID uuid.UUID) ([]assets.Component, error)
	// Commit writes one sighting's result atomically
	Commit(ctx context.Context, cs *Changeset) error
	Close() error
}

// Changeset is everything one sighting writes. Asset carries the version that
// was read; Commit fails with ErrStaleAsset if the stored version differs.
type Changeset struct {
	Asset            assets.Asset
	Create           bool
	CreateComponents []assets.Component
	UpdateComponents []assets.Component
}

func (cs *Changeset) validate() error {
	if cs.Asset.ID == uuid.Nil {
		return fmt.Errorf("changeset has no asset id")
	}
	for _, c := range append(append([]assets.Component{}, cs.CreateComponents...), cs.UpdateComponents...) {
		if c.AssetID != cs.Asset.ID {
			return fmt.Errorf("component %s belongs to asset %s, not %s", c.ID, c.AssetID, cs.Asset.ID)
		}
	}
	return nil
}

// Open returns the store selected by cfg
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "json":
		return NewFileStore(cfg.DSN)
	case "postgres", "mysql", "sqlite3":
		s, err := OpenSQL(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
